package ownership

import (
	"maps"
	"slices"
	"time"

	"github.com/xraph/rulesync/id"
	"github.com/xraph/rulesync/subscription"
)

// UserOwner owns filters added by hand rather than by a subscription.
const UserOwner = "user"

// StaticRef points a record at rules of a bundled ruleset.
type StaticRef struct {
	RulesetID string `json:"ruleset_id"`
	RuleIDs   []int  `json:"rule_ids"`
}

// Record is the ledger entry for one normalized filter text. Owners is a
// sorted set; RuleIDs holds the dynamic rule ids currently live in the
// substrate and is empty while the filter is not live.
type Record struct {
	Text     string         `json:"text"`
	RuleIDs  []int          `json:"rule_ids,omitempty"`
	Owners   []string       `json:"owners"`
	Enabled  bool           `json:"enabled"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Static   *StaticRef     `json:"static,omitempty"`
}

// HasOwner reports whether owner is among r's owners.
func (r Record) HasOwner(owner string) bool {
	_, ok := slices.BinarySearch(r.Owners, owner)
	return ok
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.RuleIDs = slices.Clone(r.RuleIDs)
	out.Owners = slices.Clone(r.Owners)
	out.Metadata = maps.Clone(r.Metadata)
	if r.Static != nil {
		s := *r.Static
		s.RuleIDs = slices.Clone(r.Static.RuleIDs)
		out.Static = &s
	}
	return out
}

func (r *Record) addOwner(owner string) bool {
	i, ok := slices.BinarySearch(r.Owners, owner)
	if ok {
		return false
	}
	r.Owners = slices.Insert(r.Owners, i, owner)
	return true
}

func (r *Record) removeOwner(owner string) bool {
	i, ok := slices.BinarySearch(r.Owners, owner)
	if !ok {
		return false
	}
	r.Owners = slices.Delete(r.Owners, i, i+1)
	return true
}

// SubscriptionState is what the ledger remembers about a subscription.
type SubscriptionState struct {
	ID        string            `json:"id"`
	Kind      subscription.Kind `json:"kind"`
	RulesetID string            `json:"ruleset_id,omitempty"`
	Enabled   bool              `json:"enabled"`
}

// StateOf extracts the ledger view of s.
func StateOf(s *subscription.Subscription) SubscriptionState {
	return SubscriptionState{
		ID:        s.ID,
		Kind:      s.Kind,
		RulesetID: s.RulesetID,
		Enabled:   s.Enabled,
	}
}

// Release is the outcome of dropping an owner.
type Release struct {
	Deleted      bool
	FreedRuleIDs []int
	Static       *StaticRef
}

// State is the serialized form of a Ledger.
type State struct {
	Revision      id.RevisionID       `json:"revision"`
	HighestRuleID int                 `json:"highest_rule_id"`
	Records       []Record            `json:"records"`
	Subscriptions []SubscriptionState `json:"subscriptions"`
	SavedAt       time.Time           `json:"saved_at"`
}

// RuleCount returns the number of dynamic rule ids held by s.
func (s *State) RuleCount() int {
	n := 0
	for _, r := range s.Records {
		n += len(r.RuleIDs)
	}
	return n
}
