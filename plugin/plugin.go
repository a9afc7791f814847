// Package plugin provides lifecycle hooks for observing a rulesync engine.
// Plugins implement Plugin plus any subset of the hook interfaces below.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/rulesync/id"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// UpdateEvent describes one committed subscription reconciliation.
type UpdateEvent struct {
	ID             id.UpdateID   `json:"id"`
	SubscriptionID string        `json:"subscription_id"`
	Mode           string        `json:"mode"`
	Added          []string      `json:"added,omitempty"`
	Removed        []string      `json:"removed,omitempty"`
	AddedRuleIDs   []int         `json:"added_rule_ids,omitempty"`
	RemovedRuleIDs []int         `json:"removed_rule_ids,omitempty"`
	Invalid        int           `json:"invalid"`
	Elapsed        time.Duration `json:"elapsed"`
	At             time.Time     `json:"at"`
}

// FiltersEvent describes a committed change to individual filters.
type FiltersEvent struct {
	Op             string    `json:"op"`
	Texts          []string  `json:"texts"`
	AddedRuleIDs   []int     `json:"added_rule_ids,omitempty"`
	RemovedRuleIDs []int     `json:"removed_rule_ids,omitempty"`
	Invalid        int       `json:"invalid"`
	At             time.Time `json:"at"`
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnSubscriptionUpdated is called after a full or diff update commits.
type OnSubscriptionUpdated interface {
	Plugin
	OnSubscriptionUpdated(ctx context.Context, ev *UpdateEvent) error
}

// OnFiltersChanged is called after individual filters are added, removed,
// disabled or enabled.
type OnFiltersChanged interface {
	Plugin
	OnFiltersChanged(ctx context.Context, ev *FiltersEvent) error
}

// OnBudgetExceeded is called when a batch is rejected for lack of quota.
type OnBudgetExceeded interface {
	Plugin
	OnBudgetExceeded(ctx context.Context, subscriptionID string, needed, available int) error
}

// OnSyncFailed is called when a substrate batch fails.
type OnSyncFailed interface {
	Plugin
	OnSyncFailed(ctx context.Context, subscriptionID string, err error) error
}

// OnQuotaOverrun is called when quota reconciliation disables filters.
type OnQuotaOverrun interface {
	Plugin
	OnQuotaOverrun(ctx context.Context, disabled []string, quota int) error
}

// ──────────────────────────────────────────────────
// Persistence hooks
// ──────────────────────────────────────────────────

// OnLedgerSaved is called after the ledger snapshot is persisted.
type OnLedgerSaved interface {
	Plugin
	OnLedgerSaved(ctx context.Context, records int, elapsed time.Duration) error
}
