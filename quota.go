package rulesync

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// QuotaResult reports the outcome of ReconcileQuota.
type QuotaResult struct {
	Quota     int      `json:"quota"`
	Overrun   int      `json:"overrun"`
	Disabled  []string `json:"disabled,omitempty"`
	FreedIDs  []int    `json:"freed_rule_ids,omitempty"`
	Available int      `json:"available"`
}

// ReconcileQuota brings the ledger back within the substrate quota after
// it shrank. While the budget is overdrawn the newest live records are
// disabled, highest rule ids first, and their rules are removed in one
// substrate batch. Nothing happens when the ledger fits.
func (e *Engine) ReconcileQuota(ctx context.Context) (res *QuotaResult, err error) {
	ctx, span := e.startSpan(ctx, "ReconcileQuota")
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	usage, err := e.budget.Usage(ctx)
	if err != nil {
		return nil, &SyncError{Kind: ErrSynchronize, Cause: err}
	}

	res = &QuotaResult{Quota: usage.Quota, Available: usage.Available}
	if usage.Available >= 0 {
		return res, nil
	}
	res.Overrun = -usage.Available
	span.SetAttributes(attribute.Int("overrun", res.Overrun))

	b := e.newBatch(false)
	freed := 0
	for _, rec := range e.ledger.NewestLive() {
		if freed >= res.Overrun {
			break
		}
		b.touch(rec.Text)
		_ = b.txn.SetEnabled(rec.Text, false) //nolint:errcheck // live record
		res.Disabled = append(res.Disabled, rec.Text)
		freed += len(rec.RuleIDs)
	}

	if err := b.run(ctx); err != nil {
		e.logger.Error("quota reconciliation rejected",
			"quota", usage.Quota,
			"overrun", res.Overrun,
			"error", err,
		)
		return nil, err
	}

	res.FreedIDs = b.remove
	res.Available = usage.Available + len(b.remove)
	e.plugins.EmitQuotaOverrun(ctx, res.Disabled, usage.Quota)

	e.logger.Warn("quota overrun, disabled newest filters",
		"quota", usage.Quota,
		"overrun", res.Overrun,
		"disabled", len(res.Disabled),
		"rules_freed", len(b.remove),
	)
	return res, nil
}
