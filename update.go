package rulesync

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/rulesync/id"
	"github.com/xraph/rulesync/plugin"
	"github.com/xraph/rulesync/subscription"
)

// Update modes reported on results and plugin events.
const (
	ModeFull    = "full"
	ModeDiff    = "diff"
	ModeEnable  = "enable"
	ModeDisable = "disable"
	ModeRemove  = "remove"
)

// UpdateResult describes a reconciliation pass.
type UpdateResult struct {
	ID             id.UpdateID    `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	Mode           string         `json:"mode"`
	Added          []string       `json:"added,omitempty"`
	Removed        []string       `json:"removed,omitempty"`
	Invalid        []*FilterError `json:"invalid,omitempty"`
	AddedRuleIDs   []int          `json:"added_rule_ids,omitempty"`
	RemovedRuleIDs []int          `json:"removed_rule_ids,omitempty"`
	StaticEnabled  []int          `json:"static_enabled,omitempty"`
	StaticDisabled []int          `json:"static_disabled,omitempty"`
	// Dropped is set when a diff update was skipped because another one
	// for the same subscription was in flight.
	Dropped bool `json:"dropped,omitempty"`
}

func (e *Engine) newResult(sub *subscription.Subscription, mode string) *UpdateResult {
	return &UpdateResult{
		ID:             id.NewUpdateID(),
		SubscriptionID: sub.ID,
		Mode:           mode,
	}
}

// finish copies the batch outcome onto res and notifies plugins.
func (e *Engine) finish(ctx context.Context, b *batch, res *UpdateResult, start time.Time) {
	res.Invalid = b.invalid
	res.AddedRuleIDs = b.addedRuleIDs()
	res.RemovedRuleIDs = b.remove
	res.StaticEnabled = b.staticEnabled
	res.StaticDisabled = b.staticDisabled

	elapsed := time.Since(start)
	e.plugins.EmitSubscriptionUpdated(ctx, &plugin.UpdateEvent{
		ID:             res.ID,
		SubscriptionID: res.SubscriptionID,
		Mode:           res.Mode,
		Added:          res.Added,
		Removed:        res.Removed,
		AddedRuleIDs:   res.AddedRuleIDs,
		RemovedRuleIDs: res.RemovedRuleIDs,
		Invalid:        len(res.Invalid),
		Elapsed:        elapsed,
		At:             time.Now().UTC(),
	})

	e.logger.Info("subscription reconciled",
		"subscription", res.SubscriptionID,
		"mode", res.Mode,
		"added", len(res.Added),
		"removed", len(res.Removed),
		"invalid", len(res.Invalid),
		"rules_added", len(res.AddedRuleIDs),
		"rules_removed", len(res.RemovedRuleIDs),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// fail records a rejected batch on the subscription and notifies plugins.
func (e *Engine) fail(ctx context.Context, sub *subscription.Subscription, mode string, err error) {
	diff := mode == ModeDiff

	var be *BudgetError
	switch {
	case errors.As(err, &be):
		sub.Status = subscription.StatusTooManyFilters
		if diff {
			sub.Status = subscription.StatusDiffTooManyFilters
		}
		e.plugins.EmitBudgetExceeded(ctx, sub.ID, be.Needed, be.Available)
	case IsSyncError(err):
		sub.Status = subscription.StatusSynchronizeError
		if diff {
			sub.Status = subscription.StatusDiffSynchronizeError
		}
		e.plugins.EmitSyncFailed(ctx, sub.ID, err)
	default:
		return
	}
	sub.LastError = err.Error()
	sub.Touch()

	e.logger.Warn("subscription update rejected",
		"subscription", sub.ID,
		"mode", mode,
		"status", sub.Status,
		"error", err,
	)
}

func (e *Engine) succeed(sub *subscription.Subscription) {
	sub.Status = subscription.StatusSynced
	sub.LastError = ""
	sub.Touch()
}
