package subscription

import (
	"fmt"
	"slices"
	"time"
)

// Kind decides how a subscription's filters reach the substrate.
type Kind string

const (
	// KindStatic subscriptions are fully served by a bundled ruleset; only
	// the ruleset and its individual rules can be toggled.
	KindStatic Kind = "static"
	// KindFull subscriptions replace their entire filter list on update.
	KindFull Kind = "full"
	// KindDiff subscriptions receive added/removed deltas, possibly on top
	// of a bundled ruleset.
	KindDiff Kind = "diff"
)

// ParseKind parses a Kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindStatic, KindFull, KindDiff:
		return k, nil
	default:
		return "", fmt.Errorf("subscription: unknown kind %q", s)
	}
}

type Status string

const (
	StatusPending              Status = "pending"
	StatusSynced               Status = "synced"
	StatusTooManyFilters       Status = "too_many_filters"
	StatusDiffTooManyFilters   Status = "diff_too_many_filters"
	StatusSynchronizeError     Status = "synchronize_error"
	StatusDiffSynchronizeError Status = "diff_synchronize_error"
)

// Failed reports whether s records a failed reconciliation.
func (s Status) Failed() bool {
	switch s {
	case StatusTooManyFilters, StatusDiffTooManyFilters, StatusSynchronizeError, StatusDiffSynchronizeError:
		return true
	default:
		return false
	}
}

// Subscription is owned by the subscription layer; the engine reads its
// identity and kind and writes back Filters, Status and LastError.
type Subscription struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	RulesetID string            `json:"ruleset_id,omitempty"`
	Enabled   bool              `json:"enabled"`
	Status    Status            `json:"status"`
	LastError string            `json:"last_error,omitempty"`
	Filters   []string          `json:"filters,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Diff is an incremental change to a subscription's filter list.
type Diff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether d changes nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Patch applies d to the Filters snapshot: removed texts are deleted and
// added texts not yet present are appended.
func (s *Subscription) Patch(d Diff) {
	if len(d.Removed) > 0 {
		drop := make(map[string]struct{}, len(d.Removed))
		for _, t := range d.Removed {
			drop[t] = struct{}{}
		}
		s.Filters = slices.DeleteFunc(s.Filters, func(t string) bool {
			_, ok := drop[t]
			return ok
		})
	}
	have := make(map[string]struct{}, len(s.Filters))
	for _, t := range s.Filters {
		have[t] = struct{}{}
	}
	for _, t := range d.Added {
		if _, ok := have[t]; !ok {
			have[t] = struct{}{}
			s.Filters = append(s.Filters, t)
		}
	}
}

// Touch updates UpdatedAt to now.
func (s *Subscription) Touch() {
	s.UpdatedAt = time.Now().UTC()
}
