package rulesync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/subscription"
)

// ──────────────────────────────────────────────────
// Static ruleset coordination
// ──────────────────────────────────────────────────

// EnableRuleset enables a bundled ruleset and every subscription bound to
// it. Dynamic rules of records that become live are budget-checked.
func (e *Engine) EnableRuleset(ctx context.Context, rulesetID string) error {
	return e.setRuleset(ctx, rulesetID, true)
}

// DisableRuleset disables a bundled ruleset and every subscription bound
// to it, releasing dynamic rule ids no longer backed by an active owner.
// Records still owned by an active owner fall back to dynamic rules.
func (e *Engine) DisableRuleset(ctx context.Context, rulesetID string) error {
	return e.setRuleset(ctx, rulesetID, false)
}

func (e *Engine) setRuleset(ctx context.Context, rulesetID string, enable bool) (err error) {
	if rulesetID == "" {
		return ErrInvalidInput
	}

	ctx, span := e.startSpan(ctx, "SetRuleset",
		attribute.String("ruleset.id", rulesetID),
		attribute.Bool("enable", enable),
	)
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}

	b := e.newBatch(false)
	for _, s := range e.ledger.Subscriptions() {
		if s.RulesetID == rulesetID && s.Enabled != enable {
			s.Enabled = enable
			b.txn.PutSubscription(s)
			e.rebindStatic(ctx, b, s)
		}
	}
	if !enable {
		b.unbindStatic(rulesetID, nil)
	}
	b.toggleRuleset(rulesetID, enable)

	if err := b.run(ctx); err != nil {
		e.logger.Warn("ruleset toggle rejected",
			"ruleset", rulesetID,
			"enable", enable,
			"error", err,
		)
		return err
	}

	e.logger.Info("ruleset toggled",
		"ruleset", rulesetID,
		"enable", enable,
		"rules_added", len(b.add),
		"rules_removed", len(b.remove),
	)
	return nil
}

// EnableRules enables individual rules of a bundled ruleset.
func (e *Engine) EnableRules(ctx context.Context, rulesetID string, ruleIDs []int) error {
	return e.setRules(ctx, rulesetID, ruleIDs, true)
}

// DisableRules disables individual rules of a bundled ruleset. Records
// served by those rules fall back to dynamic rules. Exceeding the
// substrate's disabled rule limit yields ErrTooManyFilters.
func (e *Engine) DisableRules(ctx context.Context, rulesetID string, ruleIDs []int) error {
	return e.setRules(ctx, rulesetID, ruleIDs, false)
}

func (e *Engine) setRules(ctx context.Context, rulesetID string, ruleIDs []int, enable bool) error {
	if rulesetID == "" {
		return ErrInvalidInput
	}
	if len(ruleIDs) == 0 {
		return nil
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}

	b := e.newBatch(false)
	b.toggleStatic(rulesetID, ruleIDs, enable)
	if !enable {
		b.unbindStatic(rulesetID, ruleIDs)
	}
	if err := b.run(ctx); err != nil {
		return err
	}

	e.logger.Debug("static rules toggled",
		"ruleset", rulesetID,
		"enabled", len(b.staticEnabled),
		"disabled", len(b.staticDisabled),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle
// ──────────────────────────────────────────────────

// EnableSubscription enables sub and its bundled ruleset. Filters sub owns
// become live again and are budget-checked as one batch.
func (e *Engine) EnableSubscription(ctx context.Context, sub *subscription.Subscription) (*UpdateResult, error) {
	return e.toggleSubscription(ctx, sub, true)
}

// DisableSubscription disables sub and its bundled ruleset. Ownership is
// kept; rule ids of records no longer backed by an active owner are
// released.
func (e *Engine) DisableSubscription(ctx context.Context, sub *subscription.Subscription) (*UpdateResult, error) {
	return e.toggleSubscription(ctx, sub, false)
}

func (e *Engine) toggleSubscription(ctx context.Context, sub *subscription.Subscription, enable bool) (res *UpdateResult, err error) {
	if sub == nil || sub.ID == "" {
		return nil, ErrInvalidInput
	}

	mode := ModeDisable
	if enable {
		mode = ModeEnable
	}

	ctx, span := e.startSpan(ctx, "ToggleSubscription",
		attribute.String("subscription.id", sub.ID),
		attribute.Bool("enable", enable),
	)
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	res = e.newResult(sub, mode)
	b := e.newBatch(false)

	st := ownership.StateOf(sub)
	st.Enabled = enable
	b.txn.PutSubscription(st)
	if sub.RulesetID != "" {
		b.toggleRuleset(sub.RulesetID, enable)
		e.rebindStatic(ctx, b, st)
	}
	for _, text := range e.ledger.OwnedBy(sub.ID) {
		b.touch(text)
	}

	if err := b.run(ctx); err != nil {
		e.fail(ctx, sub, mode, err)
		return nil, err
	}

	sub.Enabled = enable
	e.succeed(sub)
	e.finish(ctx, b, res, start)
	return res, nil
}

// RemoveSubscription drops sub's ownership of all its filters, frees the
// rule ids it owned exclusively, disables its bundled ruleset and forgets
// its state. Rule ids shared with another owner stay allocated.
func (e *Engine) RemoveSubscription(ctx context.Context, sub *subscription.Subscription) (res *UpdateResult, err error) {
	if sub == nil || sub.ID == "" {
		return nil, ErrInvalidInput
	}

	ctx, span := e.startSpan(ctx, "RemoveSubscription", attribute.String("subscription.id", sub.ID))
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	res = e.newResult(sub, ModeRemove)
	b := e.newBatch(false)

	rulesetID := sub.RulesetID
	if s, ok := e.ledger.Subscription(sub.ID); ok && rulesetID == "" {
		rulesetID = s.RulesetID
	}

	for _, text := range e.ledger.OwnedBy(sub.ID) {
		if b.stageRelease(text, sub.ID) {
			res.Removed = append(res.Removed, text)
		}
	}
	b.txn.DeleteSubscription(sub.ID)
	if rulesetID != "" && !e.rulesetShared(rulesetID, sub.ID) {
		// The whole ruleset goes away; per-rule overrides are moot.
		delete(b.static, rulesetID)
		b.toggleRuleset(rulesetID, false)
		b.unbindStatic(rulesetID, nil)
	}

	if err := b.run(ctx); err != nil {
		e.fail(ctx, sub, ModeRemove, err)
		return nil, err
	}

	sub.Filters = nil
	sub.Touch()
	e.finish(ctx, b, res, start)
	return res, nil
}

// rebindStatic moves records between static and dynamic rules as s's
// ruleset is toggled. Turning it off moves every record the ruleset
// serves to dynamic rules, whoever owns it. Turning it on serves the
// records s owns statically again.
func (e *Engine) rebindStatic(ctx context.Context, b *batch, s ownership.SubscriptionState) {
	if s.RulesetID == "" {
		return
	}
	owned := e.ledger.OwnedBy(s.ID)
	for _, text := range owned {
		b.touch(text)
	}
	if !s.Enabled {
		b.unbindStatic(s.RulesetID, nil)
		return
	}
	for _, text := range owned {
		rec, ok := b.txn.Lookup(text)
		if !ok || rec.Static != nil {
			continue
		}
		ids, hit, err := e.statics.Get(ctx, s.RulesetID, text)
		if err != nil {
			e.logger.Warn("static mapping lookup failed",
				"ruleset", s.RulesetID,
				"error", err,
			)
			return
		}
		if hit {
			b.claimStatic(text, s.RulesetID, ids)
		}
	}
}

// rulesetShared reports whether another subscription is bound to rulesetID.
func (e *Engine) rulesetShared(rulesetID, except string) bool {
	for _, s := range e.ledger.Subscriptions() {
		if s.ID != except && s.RulesetID == rulesetID {
			return true
		}
	}
	return false
}
