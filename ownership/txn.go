package ownership

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Txn stages ledger mutations. Reads through a Txn see its own staged
// writes on top of the committed ledger. Nothing is visible to other
// readers until Commit. A Txn that is never committed has no effect.
//
// A Txn is not safe for concurrent use and callers must serialize
// batches against the same Ledger.
type Txn struct {
	l       *Ledger
	records map[string]*Record // nil value stages a deletion
	subs    map[string]*SubscriptionState
	done    bool
}

func (t *Txn) base(text string) (*Record, bool) {
	t.l.mu.RLock()
	defer t.l.mu.RUnlock()
	r, ok := t.l.records[text]
	return r, ok
}

// get returns the staged record for text, copying it from the ledger on
// first write access.
func (t *Txn) get(text string) (*Record, bool) {
	if r, ok := t.records[text]; ok {
		return r, r != nil
	}
	b, ok := t.base(text)
	if !ok {
		return nil, false
	}
	c := b.Clone()
	t.records[text] = &c
	return &c, true
}

// Lookup returns a copy of the record for text as staged.
func (t *Txn) Lookup(text string) (Record, bool) {
	if r, ok := t.records[text]; ok {
		if r == nil {
			return Record{}, false
		}
		return r.Clone(), true
	}
	b, ok := t.base(text)
	if !ok {
		return Record{}, false
	}
	return b.Clone(), true
}

// Create stages a new record. It fails if text is already present.
func (t *Txn) Create(rec Record) error {
	if _, ok := t.Lookup(rec.Text); ok {
		return fmt.Errorf("ownership: record %q already exists", rec.Text)
	}
	c := rec.Clone()
	slices.Sort(c.Owners)
	c.Owners = slices.Compact(c.Owners)
	t.records[rec.Text] = &c
	return nil
}

// RecordOwned adds owner to text, creating an enabled record if needed.
func (t *Txn) RecordOwned(text, owner string) bool {
	r, ok := t.get(text)
	if !ok {
		t.records[text] = &Record{Text: text, Owners: []string{owner}, Enabled: true}
		return true
	}
	return r.addOwner(owner)
}

// ReleaseOwner drops owner from text.
func (t *Txn) ReleaseOwner(text, owner string) Release {
	r, ok := t.get(text)
	if !ok || !r.removeOwner(owner) {
		return Release{}
	}
	if len(r.Owners) > 0 {
		return Release{}
	}
	t.records[text] = nil
	return Release{Deleted: true, FreedRuleIDs: r.RuleIDs, Static: r.Static}
}

// SetEnabled stages the enabled flag of text.
func (t *Txn) SetEnabled(text string, enabled bool) error {
	r, ok := t.get(text)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	r.Enabled = enabled
	return nil
}

// SetRuleIDs stages the rule ids of text.
func (t *Txn) SetRuleIDs(text string, ids []int) error {
	r, ok := t.get(text)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	r.RuleIDs = slices.Clone(ids)
	return nil
}

// SetMetadata stages the metadata of text.
func (t *Txn) SetMetadata(text string, meta map[string]any) error {
	r, ok := t.get(text)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	r.Metadata = maps.Clone(meta)
	return nil
}

// SetStatic marks text as served by a bundled ruleset, or clears the
// mark when ref is nil.
func (t *Txn) SetStatic(text string, ref *StaticRef) error {
	r, ok := t.get(text)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	if ref == nil {
		r.Static = nil
		return nil
	}
	c := *ref
	c.RuleIDs = slices.Clone(ref.RuleIDs)
	r.Static = &c
	return nil
}

// Subscription returns the staged state of a subscription.
func (t *Txn) Subscription(subID string) (SubscriptionState, bool) {
	if s, ok := t.subs[subID]; ok {
		if s == nil {
			return SubscriptionState{}, false
		}
		return *s, true
	}
	return t.l.Subscription(subID)
}

// PutSubscription stages the state of a subscription.
func (t *Txn) PutSubscription(s SubscriptionState) {
	t.subs[s.ID] = &s
}

// DeleteSubscription stages removal of a subscription's state.
func (t *Txn) DeleteSubscription(subID string) {
	t.subs[subID] = nil
}

// OwnedBy returns the sorted texts owned by owner as staged.
func (t *Txn) OwnedBy(owner string) []string {
	seen := make(map[string]bool)
	for _, text := range t.l.OwnedBy(owner) {
		seen[text] = true
	}
	for text, r := range t.records {
		seen[text] = r != nil && r.HasOwner(owner)
	}
	var out []string
	for text, owned := range seen {
		if owned {
			out = append(out, text)
		}
	}
	sort.Strings(out)
	return out
}

// StaticBound returns the sorted texts served by rulesetID's static rules
// as staged.
func (t *Txn) StaticBound(rulesetID string) []string {
	seen := make(map[string]bool)
	for _, text := range t.l.StaticBound(rulesetID) {
		seen[text] = true
	}
	for text, r := range t.records {
		seen[text] = r != nil && r.Static != nil && r.Static.RulesetID == rulesetID
	}
	var out []string
	for text, bound := range seen {
		if bound {
			out = append(out, text)
		}
	}
	sort.Strings(out)
	return out
}

// Live reports whether text should hold dynamic rule ids as staged.
func (t *Txn) Live(text string) bool {
	r, ok := t.Lookup(text)
	if !ok {
		return false
	}
	return isLive(r, func(owner string) bool {
		s, ok := t.Subscription(owner)
		return !ok || s.Enabled
	})
}

// WasLive reports whether text held dynamic rule ids before this batch.
func (t *Txn) WasLive(text string) bool {
	return t.l.Live(text)
}

// Touched returns the sorted texts staged by this batch.
func (t *Txn) Touched() []string {
	out := make([]string, 0, len(t.records))
	for text := range t.records {
		out = append(out, text)
	}
	sort.Strings(out)
	return out
}

// Changed reports whether the batch stages anything.
func (t *Txn) Changed() bool {
	return len(t.records) > 0 || len(t.subs) > 0
}

// Commit applies the staged writes to the ledger in one step. Committing
// twice is a no-op.
func (t *Txn) Commit() {
	if t.done {
		return
	}
	t.done = true

	l := t.l
	l.mu.Lock()
	defer l.mu.Unlock()

	for text, r := range t.records {
		if old, ok := l.records[text]; ok {
			l.ruleCount -= len(old.RuleIDs)
		}
		if r == nil {
			delete(l.records, text)
			continue
		}
		l.records[text] = r
		l.ruleCount += len(r.RuleIDs)
		for _, ruleID := range r.RuleIDs {
			l.highest = max(l.highest, ruleID)
		}
	}
	for subID, s := range t.subs {
		if s == nil {
			delete(l.subs, subID)
			continue
		}
		l.subs[subID] = s
	}
}

// Live reports whether the committed record for text should hold dynamic
// rule ids.
func (l *Ledger) Live(text string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.records[text]
	if !ok {
		return false
	}
	return isLive(*r, func(owner string) bool {
		s, ok := l.subs[owner]
		return !ok || s.Enabled
	})
}

func isLive(r Record, active func(owner string) bool) bool {
	if !r.Enabled || r.Static != nil {
		return false
	}
	for _, owner := range r.Owners {
		if owner == UserOwner || active(owner) {
			return true
		}
	}
	return false
}
