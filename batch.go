package rulesync

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/xraph/rulesync/compiler"
	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/rule"
	"github.com/xraph/rulesync/substrate"
)

// batch stages one all-or-nothing change: ledger writes on a Txn plus the
// substrate calls that mirror them. Nothing is committed unless every
// substrate call succeeds.
type batch struct {
	e    *Engine
	txn  *ownership.Txn
	diff bool

	order    []string
	seen     map[string]bool
	compiled map[string]compiler.Result
	invalid  []*FilterError

	add     []rule.Rule
	remove  []int
	pending func()

	rulesets map[string]bool
	static   map[string]map[int]bool

	staticEnabled  []int
	staticDisabled []int
	undo           []func(context.Context) error
}

func (e *Engine) newBatch(diff bool) *batch {
	return &batch{
		e:        e,
		txn:      e.ledger.Begin(),
		diff:     diff,
		seen:     make(map[string]bool),
		compiled: make(map[string]compiler.Result),
		rulesets: make(map[string]bool),
		static:   make(map[string]map[int]bool),
	}
}

func (b *batch) touch(text string) {
	if !b.seen[text] {
		b.seen[text] = true
		b.order = append(b.order, text)
	}
}

// compile compiles text at most once per batch.
func (b *batch) compile(ctx context.Context, text string) compiler.Result {
	if res, ok := b.compiled[text]; ok {
		return res
	}
	res := b.e.compiler.Compile(ctx, text)
	b.compiled[text] = res
	return res
}

type addOutcome int

const (
	outcomeUnchanged addOutcome = iota
	outcomeShared
	outcomeNew
	outcomeInvalid
)

// stageAdd gives owner ownership of text. When rulesetID is set and its
// mapping holds text, the record is served by the static rules instead of
// compiled ones.
func (b *batch) stageAdd(ctx context.Context, text, owner, rulesetID string) (addOutcome, error) {
	rec, exists := b.txn.Lookup(text)
	if exists && rec.HasOwner(owner) {
		return outcomeUnchanged, nil
	}

	var (
		staticIDs []int
		hit       bool
	)
	if rulesetID != "" {
		ids, ok, err := b.e.statics.Get(ctx, rulesetID, text)
		if err != nil {
			return outcomeInvalid, err
		}
		staticIDs, hit = ids, ok
	}

	if exists {
		b.touch(text)
		b.txn.RecordOwned(text, owner)
		if hit && rec.Static == nil {
			b.claimStatic(text, rulesetID, staticIDs)
		}
		return outcomeShared, nil
	}

	if hit {
		b.touch(text)
		_ = b.txn.Create(ownership.Record{ //nolint:errcheck // absence checked above
			Text:    text,
			Owners:  []string{owner},
			Enabled: true,
			Static:  &ownership.StaticRef{RulesetID: rulesetID, RuleIDs: staticIDs},
		})
		b.toggleStatic(rulesetID, staticIDs, true)
		return outcomeNew, nil
	}

	res := b.compile(ctx, text)
	if !res.OK() {
		b.invalid = append(b.invalid, res.Err)
		return outcomeInvalid, nil
	}
	b.touch(text)
	_ = b.txn.Create(ownership.Record{ //nolint:errcheck // absence checked above
		Text:    text,
		Owners:  []string{owner},
		Enabled: res.Enabled,
	})
	return outcomeNew, nil
}

// stageRelease drops owner from text. Static rules of a deleted record are
// disabled.
func (b *batch) stageRelease(text, owner string) bool {
	rec, exists := b.txn.Lookup(text)
	if !exists || !rec.HasOwner(owner) {
		return false
	}
	b.touch(text)
	rel := b.txn.ReleaseOwner(text, owner)
	if rec.Static == nil {
		return true
	}
	switch {
	case rel.Deleted:
		b.toggleStatic(rec.Static.RulesetID, rec.Static.RuleIDs, false)
	case b.boundTo(owner, rec.Static.RulesetID):
		// The ruleset's own subscription dropped the text; remaining
		// owners fall back to dynamic rules.
		b.toggleStatic(rec.Static.RulesetID, rec.Static.RuleIDs, false)
		_ = b.txn.SetStatic(text, nil) //nolint:errcheck // record survives
	}
	return true
}

// boundTo reports whether owner is a subscription backed by rulesetID.
func (b *batch) boundTo(owner, rulesetID string) bool {
	s, ok := b.txn.Subscription(owner)
	return ok && s.RulesetID == rulesetID
}

func (b *batch) claimStatic(text, rulesetID string, ids []int) {
	_ = b.txn.SetStatic(text, &ownership.StaticRef{RulesetID: rulesetID, RuleIDs: ids}) //nolint:errcheck // caller checked existence
	b.toggleStatic(rulesetID, ids, true)
}

// unbindStatic moves records served by rulesetID back to dynamic rules.
// When ids is set only records claiming one of them move. settle compiles
// the ones that stay live.
func (b *batch) unbindStatic(rulesetID string, ids []int) {
	for _, text := range b.txn.StaticBound(rulesetID) {
		rec, _ := b.txn.Lookup(text)
		if ids != nil && !claims(rec.Static, ids) {
			continue
		}
		b.touch(text)
		_ = b.txn.SetStatic(text, nil) //nolint:errcheck // just looked up
	}
}

// staticClaimed reports whether any record is served by one of ids.
func (b *batch) staticClaimed(rulesetID string, ids []int) bool {
	for _, text := range b.txn.StaticBound(rulesetID) {
		if rec, ok := b.txn.Lookup(text); ok && claims(rec.Static, ids) {
			return true
		}
	}
	return false
}

func claims(ref *ownership.StaticRef, ids []int) bool {
	return slices.ContainsFunc(ref.RuleIDs, func(ruleID int) bool {
		return slices.Contains(ids, ruleID)
	})
}

func (b *batch) toggleStatic(rulesetID string, ids []int, enable bool) {
	m, ok := b.static[rulesetID]
	if !ok {
		m = make(map[int]bool)
		b.static[rulesetID] = m
	}
	for _, ruleID := range ids {
		m[ruleID] = enable
	}
}

func (b *batch) toggleRuleset(rulesetID string, enable bool) {
	if rulesetID == "" {
		return
	}
	if cur, known := b.e.rulesets[rulesetID]; known && cur == enable {
		delete(b.rulesets, rulesetID)
		return
	}
	b.rulesets[rulesetID] = enable
}

// settle reconciles rule ids with liveness for every touched record:
// records that stopped being live release their ids and records that
// became live get freshly compiled rules. It returns the net rule delta.
func (b *batch) settle(ctx context.Context) int {
	texts := slices.Clone(b.order)
	for _, text := range b.txn.Touched() {
		if !b.seen[text] {
			texts = append(texts, text)
		}
	}

	type pending struct {
		text  string
		rules []rule.Rule
	}
	var need []pending
	total := 0

	for _, text := range texts {
		var baseIDs []int
		if base, ok := b.e.ledger.Lookup(text); ok {
			baseIDs = base.RuleIDs
		}
		rec, exists := b.txn.Lookup(text)
		live := b.txn.Live(text)

		switch {
		case !live:
			if len(baseIDs) > 0 {
				b.remove = append(b.remove, baseIDs...)
			}
			if exists && len(rec.RuleIDs) > 0 {
				_ = b.txn.SetRuleIDs(text, nil) //nolint:errcheck // exists
			}
		case len(rec.RuleIDs) > 0:
		case len(baseIDs) > 0:
			// Released and re-added within this batch.
			_ = b.txn.SetRuleIDs(text, baseIDs) //nolint:errcheck // exists
		case !b.txn.WasLive(text):
			res := b.compile(ctx, text)
			if !res.OK() {
				b.e.logger.Warn("filter no longer compiles",
					"filter", text,
					"error", res.Err,
				)
				b.invalid = append(b.invalid, res.Err)
				continue
			}
			if len(res.Rules) > 0 {
				need = append(need, pending{text: text, rules: res.Rules})
				total += len(res.Rules)
			}
		}
	}

	b.pending = func() {
		ids := b.e.ledger.AllocateRuleIDs(total)
		for _, p := range need {
			recIDs := ids[:len(p.rules)]
			ids = ids[len(p.rules):]
			for i, r := range p.rules {
				b.add = append(b.add, r.WithID(recIDs[i]))
			}
			_ = b.txn.SetRuleIDs(p.text, recIDs) //nolint:errcheck // live records exist
		}
	}

	return total - len(b.remove)
}

// check gates the batch on the budget and assigns rule ids once it fits.
func (b *batch) check(ctx context.Context, net int) error {
	chk, err := b.e.budget.CanApply(ctx, net)
	if err != nil {
		return b.syncErr(err)
	}
	if !chk.OK {
		return &BudgetError{Kind: b.budgetKind(), Needed: chk.Needed, Available: chk.Available}
	}
	if b.pending != nil {
		b.pending()
		b.pending = nil
	}
	return nil
}

// apply issues the substrate calls: ruleset toggles, per-rule static
// toggles and finally the dynamic batch. A failure reverts the static
// toggles already applied.
func (b *batch) apply(ctx context.Context) error {
	sub := b.e.substrate

	if len(b.rulesets) > 0 {
		var on, off []string
		for rulesetID, enable := range b.rulesets {
			if enable {
				on = append(on, rulesetID)
			} else {
				off = append(off, rulesetID)
			}
		}
		sort.Strings(on)
		sort.Strings(off)
		if err := sub.UpdateEnabledRulesets(ctx, on, off); err != nil {
			return b.syncErr(err)
		}
		b.undo = append(b.undo, func(ctx context.Context) error {
			return sub.UpdateEnabledRulesets(ctx, off, on)
		})
	}

	rulesetIDs := make([]string, 0, len(b.static))
	for rulesetID := range b.static {
		rulesetIDs = append(rulesetIDs, rulesetID)
	}
	sort.Strings(rulesetIDs)

	for _, rulesetID := range rulesetIDs {
		disabled, err := sub.DisabledStaticRuleIDs(ctx, rulesetID)
		if err != nil {
			b.revert(ctx)
			return b.syncErr(err)
		}
		isDisabled := make(map[int]bool, len(disabled))
		for _, ruleID := range disabled {
			isDisabled[ruleID] = true
		}

		var enable, disable []int
		for ruleID, on := range b.static[rulesetID] {
			switch {
			case on && isDisabled[ruleID]:
				enable = append(enable, ruleID)
			case !on && !isDisabled[ruleID]:
				disable = append(disable, ruleID)
			}
		}
		if len(enable)+len(disable) == 0 {
			continue
		}
		slices.Sort(enable)
		slices.Sort(disable)

		if err := sub.UpdateStaticRules(ctx, rulesetID, enable, disable); err != nil {
			b.revert(ctx)
			if errors.Is(err, substrate.ErrDisabledRuleLimit) {
				return &BudgetError{Kind: b.budgetKind(), Needed: len(disable), Cause: err}
			}
			return b.syncErr(err)
		}
		b.undo = append(b.undo, func(ctx context.Context) error {
			return sub.UpdateStaticRules(ctx, rulesetID, disable, enable)
		})
		b.staticEnabled = append(b.staticEnabled, enable...)
		b.staticDisabled = append(b.staticDisabled, disable...)
	}

	if len(b.add)+len(b.remove) > 0 {
		if err := sub.UpdateDynamicRules(ctx, b.add, b.remove); err != nil {
			b.revert(ctx)
			return b.syncErr(err)
		}
	}
	return nil
}

// revert undoes applied static toggles in reverse order, best effort.
func (b *batch) revert(ctx context.Context) {
	for i := len(b.undo) - 1; i >= 0; i-- {
		if err := b.undo[i](ctx); err != nil {
			b.e.logger.Warn("failed to revert static toggle",
				"error", err,
			)
		}
	}
	b.undo = nil
}

// commit makes the staged ledger writes visible and schedules a save.
// A batch that allocated rule ids saves before returning so the id
// counter never falls behind the substrate.
func (b *batch) commit(ctx context.Context) {
	b.txn.Commit()
	for rulesetID, enable := range b.rulesets {
		b.e.rulesets[rulesetID] = enable
	}
	if len(b.add) > 0 {
		b.e.save(ctx)
		return
	}
	b.e.requestSave(ctx)
}

// run settles, checks, applies and commits the batch.
func (b *batch) run(ctx context.Context) error {
	net := b.settle(ctx)
	if err := b.check(ctx, net); err != nil {
		return err
	}
	if err := b.apply(ctx); err != nil {
		return err
	}
	b.commit(ctx)
	return nil
}

func (b *batch) addedRuleIDs() []int { return rule.IDs(b.add) }

func (b *batch) budgetKind() error {
	if b.diff {
		return ErrDiffTooManyFilters
	}
	return ErrTooManyFilters
}

func (b *batch) syncErr(err error) error {
	if b.diff {
		return &SyncError{Kind: ErrDiffSynchronize, Cause: err}
	}
	return &SyncError{Kind: ErrSynchronize, Cause: err}
}
