package rulesync

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/subscription"
)

// FullUpdate replaces the complete filter list of sub with texts.
//
// Texts are normalized and deduplicated in input order. Texts new to the
// ledger are compiled; invalid ones are reported and skipped. Texts sub
// owned before but no longer lists lose sub as an owner. The resulting
// rule delta is checked against the budget and sent to the substrate in one
// batch; the ledger only changes if that batch succeeds. A disabled sub
// keeps ownership without live rules.
//
// On success sub.Filters holds the accepted list and sub.Status is synced.
// On failure the ledger and sub.Filters are unchanged and sub.Status
// records the error kind.
func (e *Engine) FullUpdate(ctx context.Context, sub *subscription.Subscription, texts []string) (res *UpdateResult, err error) {
	if sub == nil || sub.ID == "" {
		return nil, ErrInvalidInput
	}
	switch sub.Kind {
	case subscription.KindFull, subscription.KindDiff:
	default:
		return nil, fmt.Errorf("%w: full update of %s subscription", ErrUnsupportedKind, sub.Kind)
	}

	ctx, span := e.startSpan(ctx, "FullUpdate",
		attribute.String("subscription.id", sub.ID),
		attribute.Int("filters", len(texts)),
	)
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	res = e.newResult(sub, ModeFull)
	b := e.newBatch(false)
	b.txn.PutSubscription(ownership.StateOf(sub))

	listed := make(map[string]bool, len(texts))
	accepted := make([]string, 0, len(texts))
	for _, raw := range texts {
		text := e.filters.Normalize(raw)
		if text == "" || listed[text] {
			continue
		}
		listed[text] = true

		outcome, err := b.stageAdd(ctx, text, sub.ID, sub.RulesetID)
		if err != nil {
			err = b.syncErr(err)
			e.fail(ctx, sub, ModeFull, err)
			return nil, err
		}
		switch outcome {
		case outcomeUnchanged:
			accepted = append(accepted, text)
		case outcomeShared, outcomeNew:
			accepted = append(accepted, text)
			res.Added = append(res.Added, text)
		}
	}

	for _, text := range e.ledger.OwnedBy(sub.ID) {
		if !listed[text] && b.stageRelease(text, sub.ID) {
			res.Removed = append(res.Removed, text)
		}
	}

	if err := b.run(ctx); err != nil {
		e.fail(ctx, sub, ModeFull, err)
		return nil, err
	}

	sub.Filters = accepted
	e.succeed(sub)
	e.finish(ctx, b, res, start)
	return res, nil
}
