package rulesync

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/subscription"
)

// DiffUpdate applies an added/removed delta to sub.
//
// Only one diff update per subscription runs at a time; a call made while
// another is in flight for the same subscription is dropped and reports
// Dropped without touching the ledger or the substrate. An empty diff is a
// no-op.
//
// When sub is bound to a bundled ruleset, added texts the ruleset already
// contains enable their static rules instead of compiling dynamic ones,
// and removed static texts disable them unless another record still
// relies on those rules. Static toggles go out before the
// dynamic batch and are reverted if it fails. Errors use the diff variants
// so callers can fall back to FullUpdate.
func (e *Engine) DiffUpdate(ctx context.Context, sub *subscription.Subscription, d subscription.Diff) (res *UpdateResult, err error) {
	if sub == nil || sub.ID == "" {
		return nil, ErrInvalidInput
	}
	if sub.Kind != subscription.KindDiff {
		return nil, fmt.Errorf("%w: diff update of %s subscription", ErrUnsupportedKind, sub.Kind)
	}

	release, ok := e.guards.TryAcquire(sub.ID)
	if !ok {
		e.logger.Debug("diff update already in flight, dropping",
			"subscription", sub.ID,
		)
		return &UpdateResult{SubscriptionID: sub.ID, Mode: ModeDiff, Dropped: true}, nil
	}
	defer release()

	if d.Empty() {
		e.logger.Debug("empty diff", "subscription", sub.ID)
		return &UpdateResult{SubscriptionID: sub.ID, Mode: ModeDiff}, nil
	}

	ctx, span := e.startSpan(ctx, "DiffUpdate",
		attribute.String("subscription.id", sub.ID),
		attribute.Int("added", len(d.Added)),
		attribute.Int("removed", len(d.Removed)),
	)
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	res = e.newResult(sub, ModeDiff)
	b := e.newBatch(true)
	b.txn.PutSubscription(ownership.StateOf(sub))

	var patch subscription.Diff
	done := make(map[string]bool, len(d.Removed))
	for _, raw := range d.Removed {
		text := e.filters.Normalize(raw)
		if text == "" || done[text] {
			continue
		}
		done[text] = true

		if b.stageRelease(text, sub.ID) {
			res.Removed = append(res.Removed, text)
			patch.Removed = append(patch.Removed, text)
			continue
		}

		ids, hit, err := e.statics.Get(ctx, sub.RulesetID, text)
		if err != nil {
			err = b.syncErr(err)
			e.fail(ctx, sub, ModeDiff, err)
			return nil, err
		}
		if hit {
			if b.staticClaimed(sub.RulesetID, ids) {
				e.logger.Debug("static rules still claimed, keeping them",
					"subscription", sub.ID,
					"filter", text,
				)
			} else {
				b.toggleStatic(sub.RulesetID, ids, false)
			}
			res.Removed = append(res.Removed, text)
			patch.Removed = append(patch.Removed, text)
			continue
		}
		e.logger.Debug("removed filter not owned", "subscription", sub.ID, "filter", text)
	}

	added := make(map[string]bool, len(d.Added))
	for _, raw := range d.Added {
		text := e.filters.Normalize(raw)
		if text == "" || added[text] {
			continue
		}
		added[text] = true

		outcome, err := b.stageAdd(ctx, text, sub.ID, sub.RulesetID)
		if err != nil {
			err = b.syncErr(err)
			e.fail(ctx, sub, ModeDiff, err)
			return nil, err
		}
		switch outcome {
		case outcomeUnchanged:
			patch.Added = append(patch.Added, text)
		case outcomeShared, outcomeNew:
			res.Added = append(res.Added, text)
			patch.Added = append(patch.Added, text)
		}
	}

	if err := b.run(ctx); err != nil {
		e.fail(ctx, sub, ModeDiff, err)
		return nil, err
	}

	sub.Patch(patch)
	e.succeed(sub)
	e.finish(ctx, b, res, start)
	return res, nil
}
