package rulesync

import (
	"context"
	"slices"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/plugin"
)

// AddResult reports the outcome of AddFilters.
type AddResult struct {
	Added        []string       `json:"added,omitempty"`
	Existing     []string       `json:"existing,omitempty"`
	Static       []string       `json:"static,omitempty"`
	Invalid      []*FilterError `json:"invalid,omitempty"`
	AddedRuleIDs []int          `json:"added_rule_ids,omitempty"`
}

// RemoveResult reports the outcome of RemoveOrDisableFilters.
type RemoveResult struct {
	Removed  []string `json:"removed,omitempty"`
	Disabled []string `json:"disabled,omitempty"`
	// Retained lists texts not removed because only subscriptions own them.
	Retained []string `json:"retained,omitempty"`
	// Static lists texts unknown to the ledger whose bundled rules were
	// disabled.
	Static         []string `json:"static,omitempty"`
	Unknown        []string `json:"unknown,omitempty"`
	RemovedRuleIDs []int    `json:"removed_rule_ids,omitempty"`
}

// EnableResult reports the outcome of EnableFilters.
type EnableResult struct {
	Enabled      []string       `json:"enabled,omitempty"`
	Static       []string       `json:"static,omitempty"`
	Unknown      []string       `json:"unknown,omitempty"`
	Invalid      []*FilterError `json:"invalid,omitempty"`
	AddedRuleIDs []int          `json:"added_rule_ids,omitempty"`
}

// AddFilters adds filters owned by the user rather than a subscription.
// Texts an enabled bundled ruleset already contains are served by its
// static rules. Invalid texts are reported and skipped; the rest are
// applied in one budget-checked batch.
func (e *Engine) AddFilters(ctx context.Context, texts []string, metadata map[string]any) (res *AddResult, err error) {
	ctx, span := e.startSpan(ctx, "AddFilters", attribute.Int("filters", len(texts)))
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	res = &AddResult{}
	b := e.newBatch(false)
	for _, text := range e.normalizeAll(texts) {
		if rec, ok := b.txn.Lookup(text); ok && rec.HasOwner(ownership.UserOwner) {
			res.Existing = append(res.Existing, text)
			continue
		}

		rulesetID, _ := e.findStatic(ctx, text)
		outcome, err := b.stageAdd(ctx, text, ownership.UserOwner, rulesetID)
		if err != nil {
			return nil, b.syncErr(err)
		}
		if outcome == outcomeInvalid {
			continue
		}
		res.Added = append(res.Added, text)
		if rec, _ := b.txn.Lookup(text); rec.Static != nil {
			res.Static = append(res.Static, text)
		}
		if metadata != nil {
			_ = b.txn.SetMetadata(text, metadata) //nolint:errcheck // just staged
		}
	}

	if err := b.run(ctx); err != nil {
		e.logger.Warn("add filters rejected", "error", err)
		return nil, err
	}

	res.Invalid = b.invalid
	res.AddedRuleIDs = b.addedRuleIDs()
	e.filtersChanged(ctx, "add", res.Added, b)
	return res, nil
}

// RemoveOrDisableFilters removes or disables filters regardless of which
// subscription owns them. Texts unknown to the ledger are presumed to live
// in an enabled bundled ruleset and have their static rules disabled.
//
// Removing drops the user's ownership; a record still owned by a
// subscription keeps its rules. Disabling keeps the record and its owners
// but releases its rule ids.
func (e *Engine) RemoveOrDisableFilters(ctx context.Context, texts []string, remove bool) (res *RemoveResult, err error) {
	ctx, span := e.startSpan(ctx, "RemoveOrDisableFilters",
		attribute.Int("filters", len(texts)),
		attribute.Bool("remove", remove),
	)
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	res = &RemoveResult{}
	b := e.newBatch(false)
	for _, text := range e.normalizeAll(texts) {
		rec, known := b.txn.Lookup(text)
		switch {
		case known && remove && rec.HasOwner(ownership.UserOwner):
			b.stageRelease(text, ownership.UserOwner)
			res.Removed = append(res.Removed, text)
		case known && remove:
			res.Retained = append(res.Retained, text)
		case known:
			b.touch(text)
			_ = b.txn.SetEnabled(text, false) //nolint:errcheck // known
			if rec.Static != nil {
				b.toggleStatic(rec.Static.RulesetID, rec.Static.RuleIDs, false)
			}
			res.Disabled = append(res.Disabled, text)
		default:
			rulesetID, ids := e.findStatic(ctx, text)
			if rulesetID == "" {
				res.Unknown = append(res.Unknown, text)
				continue
			}
			b.toggleStatic(rulesetID, ids, false)
			res.Static = append(res.Static, text)
		}
	}

	if err := b.run(ctx); err != nil {
		e.logger.Warn("remove filters rejected", "error", err)
		return nil, err
	}

	res.RemovedRuleIDs = b.remove
	op, changed := "disable", slices.Concat(res.Disabled, res.Static)
	if remove {
		op, changed = "remove", slices.Concat(res.Removed, res.Static)
	}
	e.filtersChanged(ctx, op, changed, b)
	return res, nil
}

// EnableFilters re-enables filters. Known records are enabled in the
// filter engine too, then recompiled and budget-checked; unknown texts
// found in an enabled bundled ruleset have their static rules enabled.
func (e *Engine) EnableFilters(ctx context.Context, texts []string) (res *EnableResult, err error) {
	ctx, span := e.startSpan(ctx, "EnableFilters", attribute.Int("filters", len(texts)))
	defer func() { endSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}

	res = &EnableResult{}
	b := e.newBatch(false)
	var flipped []string
	for _, text := range e.normalizeAll(texts) {
		rec, known := b.txn.Lookup(text)
		if known {
			if !e.filters.IsEnabled(text) {
				e.filters.SetEnabled(text, true)
				flipped = append(flipped, text)
			}
			b.touch(text)
			_ = b.txn.SetEnabled(text, true) //nolint:errcheck // known
			if rec.Static != nil {
				b.toggleStatic(rec.Static.RulesetID, rec.Static.RuleIDs, true)
			}
			res.Enabled = append(res.Enabled, text)
			continue
		}
		rulesetID, ids := e.findStatic(ctx, text)
		if rulesetID == "" {
			res.Unknown = append(res.Unknown, text)
			continue
		}
		b.toggleStatic(rulesetID, ids, true)
		res.Static = append(res.Static, text)
	}

	if err := b.run(ctx); err != nil {
		for _, text := range flipped {
			e.filters.SetEnabled(text, false)
		}
		e.logger.Warn("enable filters rejected", "error", err)
		return nil, err
	}

	res.Invalid = b.invalid
	res.AddedRuleIDs = b.addedRuleIDs()
	e.filtersChanged(ctx, "enable", slices.Concat(res.Enabled, res.Static), b)
	return res, nil
}

// findStatic looks text up in every enabled bundled ruleset. Lookup
// failures are logged and treated as a miss.
func (e *Engine) findStatic(ctx context.Context, text string) (string, []int) {
	rulesetIDs := make([]string, 0, len(e.rulesets))
	for rulesetID, enabled := range e.rulesets {
		if enabled {
			rulesetIDs = append(rulesetIDs, rulesetID)
		}
	}
	sort.Strings(rulesetIDs)

	for _, rulesetID := range rulesetIDs {
		ids, ok, err := e.statics.Get(ctx, rulesetID, text)
		if err != nil {
			e.logger.Warn("static mapping lookup failed",
				"ruleset", rulesetID,
				"error", err,
			)
			continue
		}
		if ok {
			return rulesetID, ids
		}
	}
	return "", nil
}

func (e *Engine) normalizeAll(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	out := make([]string, 0, len(texts))
	for _, raw := range texts {
		text := e.filters.Normalize(raw)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return out
}

func (e *Engine) filtersChanged(ctx context.Context, op string, texts []string, b *batch) {
	e.plugins.EmitFiltersChanged(ctx, &plugin.FiltersEvent{
		Op:             op,
		Texts:          texts,
		AddedRuleIDs:   b.addedRuleIDs(),
		RemovedRuleIDs: b.remove,
		Invalid:        len(b.invalid),
		At:             time.Now().UTC(),
	})

	e.logger.Info("filters changed",
		"op", op,
		"filters", len(texts),
		"rules_added", len(b.add),
		"rules_removed", len(b.remove),
	)
}
