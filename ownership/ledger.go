// Package ownership keeps the authoritative in-memory map from filter text
// to compiled rule ids and owning subscriptions.
//
// Every mutation is synchronous. Batches are staged on a Txn and committed
// in one step, so readers never see a half-applied batch and a rejected
// batch leaves no trace. Persisting the ledger is the caller's job.
package ownership

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/rulesync/id"
)

// ErrNotFound is returned for operations on unknown filter text.
var ErrNotFound = errors.New("ownership: filter not found")

// Ledger is safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	records   map[string]*Record
	subs      map[string]*SubscriptionState
	highest   int
	ruleCount int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		records: make(map[string]*Record),
		subs:    make(map[string]*SubscriptionState),
	}
}

// Lookup returns a copy of the record for text.
func (l *Ledger) Lookup(text string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.records[text]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// RuleCount returns the number of dynamic rule ids allocated across all
// records.
func (l *Ledger) RuleCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ruleCount
}

// HighestRuleID returns the last rule id handed out.
func (l *Ledger) HighestRuleID() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.highest
}

// AllocateRuleIDs hands out n fresh rule ids. Ids only ever grow; ids of a
// batch that is later discarded are not reused.
func (l *Ledger) AllocateRuleIDs(n int) []int {
	if n <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]int, n)
	for i := range ids {
		l.highest++
		ids[i] = l.highest
	}
	return ids
}

// OwnedBy returns the sorted texts owned by owner.
func (l *Ledger) OwnedBy(owner string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []string
	for text, r := range l.records {
		if r.HasOwner(owner) {
			out = append(out, text)
		}
	}
	sort.Strings(out)
	return out
}

// StaticBound returns the sorted texts served by rulesetID's static rules.
func (l *Ledger) StaticBound(rulesetID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []string
	for text, r := range l.records {
		if r.Static != nil && r.Static.RulesetID == rulesetID {
			out = append(out, text)
		}
	}
	sort.Strings(out)
	return out
}

// Records returns copies of all records sorted by text.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b Record) int {
		if a.Text < b.Text {
			return -1
		}
		if a.Text > b.Text {
			return 1
		}
		return 0
	})
	return out
}

// Subscription returns the remembered state of a subscription.
func (l *Ledger) Subscription(subID string) (SubscriptionState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.subs[subID]
	if !ok {
		return SubscriptionState{}, false
	}
	return *s, true
}

// Subscriptions returns all remembered subscriptions sorted by id.
func (l *Ledger) Subscriptions() []SubscriptionState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]SubscriptionState, 0, len(l.subs))
	for _, s := range l.subs {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b SubscriptionState) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// RecordOwned adds owner to text, creating an enabled record if needed.
// It returns true if the (text, owner) pair is new.
func (l *Ledger) RecordOwned(text, owner string) bool {
	t := l.Begin()
	added := t.RecordOwned(text, owner)
	t.Commit()
	return added
}

// ReleaseOwner drops owner from text. When it was the last owner the
// record is deleted and its rule ids are returned for release.
func (l *Ledger) ReleaseOwner(text, owner string) Release {
	t := l.Begin()
	rel := t.ReleaseOwner(text, owner)
	t.Commit()
	return rel
}

// SetEnabled sets the enabled flag of text.
func (l *Ledger) SetEnabled(text string, enabled bool) error {
	t := l.Begin()
	if err := t.SetEnabled(text, enabled); err != nil {
		return err
	}
	t.Commit()
	return nil
}

// SetRuleIDs replaces the rule ids of text.
func (l *Ledger) SetRuleIDs(text string, ids []int) error {
	t := l.Begin()
	if err := t.SetRuleIDs(text, ids); err != nil {
		return err
	}
	t.Commit()
	return nil
}

// SetMetadata replaces the metadata of text.
func (l *Ledger) SetMetadata(text string, meta map[string]any) error {
	t := l.Begin()
	if err := t.SetMetadata(text, meta); err != nil {
		return err
	}
	t.Commit()
	return nil
}

// Metadata returns a copy of the metadata of text.
func (l *Ledger) Metadata(text string) (map[string]any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.records[text]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	return maps.Clone(r.Metadata), nil
}

// Snapshot serializes the ledger.
func (l *Ledger) Snapshot() *State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := &State{
		Revision:      id.NewRevisionID(),
		HighestRuleID: l.highest,
		Records:       make([]Record, 0, len(l.records)),
		Subscriptions: make([]SubscriptionState, 0, len(l.subs)),
		SavedAt:       time.Now().UTC(),
	}
	for _, r := range l.records {
		st.Records = append(st.Records, r.Clone())
	}
	for _, s := range l.subs {
		st.Subscriptions = append(st.Subscriptions, *s)
	}
	sort.Slice(st.Records, func(i, j int) bool { return st.Records[i].Text < st.Records[j].Text })
	sort.Slice(st.Subscriptions, func(i, j int) bool { return st.Subscriptions[i].ID < st.Subscriptions[j].ID })
	return st
}

// Restore replaces the ledger contents with st. Records without owners
// are dropped. The id counter never moves backwards past ids seen in st.
func (l *Ledger) Restore(st *State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = make(map[string]*Record, len(st.Records))
	l.subs = make(map[string]*SubscriptionState, len(st.Subscriptions))
	l.ruleCount = 0
	l.highest = st.HighestRuleID

	for _, r := range st.Records {
		if len(r.Owners) == 0 {
			continue
		}
		rec := r.Clone()
		slices.Sort(rec.Owners)
		rec.Owners = slices.Compact(rec.Owners)
		l.records[rec.Text] = &rec
		l.ruleCount += len(rec.RuleIDs)
		for _, ruleID := range rec.RuleIDs {
			l.highest = max(l.highest, ruleID)
		}
	}
	for _, s := range st.Subscriptions {
		sub := s
		l.subs[sub.ID] = &sub
	}
}

// NewestLive returns live dynamic records ordered by their highest rule id,
// newest first.
func (l *Ledger) NewestLive() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, r := range l.records {
		if len(r.RuleIDs) > 0 {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return slices.Max(out[i].RuleIDs) > slices.Max(out[j].RuleIDs)
	})
	return out
}

// Begin starts a batch.
func (l *Ledger) Begin() *Txn {
	return &Txn{
		l:       l,
		records: make(map[string]*Record),
		subs:    make(map[string]*SubscriptionState),
	}
}
