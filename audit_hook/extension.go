// Package audithook bridges rulesync reconciliation events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// a particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/rulesync/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnSubscriptionUpdated = (*Extension)(nil)
	_ plugin.OnBudgetExceeded      = (*Extension)(nil)
	_ plugin.OnSyncFailed          = (*Extension)(nil)
	_ plugin.OnFiltersChanged      = (*Extension)(nil)
	_ plugin.OnQuotaOverrun        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension records reconciliation events through a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (e *Extension) OnSubscriptionUpdated(ctx context.Context, ev *plugin.UpdateEvent) error {
	outcome := OutcomeSuccess
	if ev.Invalid > 0 {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionSubscriptionSynced, SeverityInfo, outcome,
		ResourceSubscription, ev.SubscriptionID, CategorySync, nil,
		"update_id", ev.ID.String(),
		"mode", ev.Mode,
		"added", len(ev.Added),
		"removed", len(ev.Removed),
		"invalid", ev.Invalid,
		"rules_added", len(ev.AddedRuleIDs),
		"rules_removed", len(ev.RemovedRuleIDs),
	)
}

// OnBudgetExceeded implements plugin.OnBudgetExceeded.
func (e *Extension) OnBudgetExceeded(ctx context.Context, subscriptionID string, needed, available int) error {
	return e.record(ctx, ActionSubscriptionRejected, SeverityWarning, OutcomeFailure,
		ResourceSubscription, subscriptionID, CategoryBudget, nil,
		"needed", needed,
		"available", available,
	)
}

// OnSyncFailed implements plugin.OnSyncFailed.
func (e *Extension) OnSyncFailed(ctx context.Context, subscriptionID string, err error) error {
	return e.record(ctx, ActionSyncFailed, SeverityError, OutcomeFailure,
		ResourceSubscription, subscriptionID, CategorySync, err,
	)
}

// ──────────────────────────────────────────────────
// Filter hooks
// ──────────────────────────────────────────────────

// OnFiltersChanged implements plugin.OnFiltersChanged.
func (e *Extension) OnFiltersChanged(ctx context.Context, ev *plugin.FiltersEvent) error {
	action, ok := filterActions[ev.Op]
	if !ok {
		return nil
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceFilter, "", CategoryFilter, nil,
		"filters", ev.Texts,
		"invalid", ev.Invalid,
		"rules_added", len(ev.AddedRuleIDs),
		"rules_removed", len(ev.RemovedRuleIDs),
	)
}

var filterActions = map[string]string{
	"add":     ActionFiltersAdded,
	"remove":  ActionFiltersRemoved,
	"disable": ActionFiltersDisabled,
	"enable":  ActionFiltersEnabled,
}

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnQuotaOverrun implements plugin.OnQuotaOverrun.
func (e *Extension) OnQuotaOverrun(ctx context.Context, disabled []string, quota int) error {
	return e.record(ctx, ActionQuotaOverrun, SeverityCritical, OutcomePartial,
		ResourceQuota, "", CategoryBudget, nil,
		"quota", quota,
		"disabled", disabled,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
