// Package memory provides an in-process rule substrate for tests and dry
// runs.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"

	"github.com/xraph/rulesync/rule"
	"github.com/xraph/rulesync/substrate"
)

// DefaultQuota matches the dynamic rule ceiling common to browser hosts.
const DefaultQuota = 30000

type ruleset struct {
	ids      map[int]bool
	enabled  bool
	disabled map[int]bool
}

type hold struct {
	entered chan struct{}
	release chan struct{}
}

// Substrate is safe for concurrent use.
type Substrate struct {
	mu sync.Mutex

	quota         int
	sessionRules  int
	disabledLimit int
	regexOK       func(string) bool

	dynamic  map[int]rule.Rule
	rulesets map[string]*ruleset

	dynamicErr error
	staticErr  error
	hold       *hold

	dynamicCalls int
	staticCalls  int
}

var _ substrate.Substrate = (*Substrate)(nil)

// Option configures a Substrate.
type Option func(*Substrate)

// WithQuota sets the dynamic rule quota.
func WithQuota(n int) Option {
	return func(s *Substrate) { s.quota = n }
}

// WithSessionRules adds n session rules that count against the quota but
// are not managed through this package.
func WithSessionRules(n int) Option {
	return func(s *Substrate) { s.sessionRules = n }
}

// WithDisabledRuleLimit caps the number of individually disabled static
// rules across all rulesets. Zero means unlimited.
func WithDisabledRuleLimit(n int) Option {
	return func(s *Substrate) { s.disabledLimit = n }
}

// WithRuleset declares a bundled ruleset.
func WithRuleset(rulesetID string, ruleIDs []int, enabled bool) Option {
	return func(s *Substrate) {
		rs := &ruleset{ids: make(map[int]bool), enabled: enabled, disabled: make(map[int]bool)}
		for _, ruleID := range ruleIDs {
			rs.ids[ruleID] = true
		}
		s.rulesets[rulesetID] = rs
	}
}

// WithRegexSupport overrides the regex capability check.
func WithRegexSupport(fn func(pattern string) bool) Option {
	return func(s *Substrate) { s.regexOK = fn }
}

// New creates a Substrate.
func New(opts ...Option) *Substrate {
	s := &Substrate{
		quota:    DefaultQuota,
		dynamic:  make(map[int]rule.Rule),
		rulesets: make(map[string]*ruleset),
		regexOK: func(pattern string) bool {
			_, err := regexp.Compile(pattern)
			return err == nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateDynamicRules applies one batch.
func (s *Substrate) UpdateDynamicRules(ctx context.Context, add []rule.Rule, removeIDs []int) error {
	s.mu.Lock()
	h := s.hold
	s.hold = nil
	s.dynamicCalls++
	s.mu.Unlock()

	if h != nil {
		close(h.entered)
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dynamicErr != nil {
		return s.dynamicErr
	}

	next := make(map[int]rule.Rule, len(s.dynamic)+len(add))
	for ruleID, r := range s.dynamic {
		next[ruleID] = r
	}
	for _, ruleID := range removeIDs {
		delete(next, ruleID)
	}
	for _, r := range add {
		if _, dup := next[r.ID]; dup {
			return fmt.Errorf("%w: %d", substrate.ErrDuplicateRuleID, r.ID)
		}
		next[r.ID] = r
	}
	if len(next)+s.sessionRules > s.quota {
		return fmt.Errorf("%w: %d rules over quota %d", substrate.ErrQuotaExceeded, len(next)+s.sessionRules, s.quota)
	}
	s.dynamic = next
	return nil
}

// DisabledStaticRuleIDs lists the disabled rules of a ruleset.
func (s *Substrate) DisabledStaticRuleIDs(_ context.Context, rulesetID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.rulesets[rulesetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", substrate.ErrRulesetNotFound, rulesetID)
	}
	return sortedKeys(rs.disabled), nil
}

// UpdateStaticRules toggles individual static rules.
func (s *Substrate) UpdateStaticRules(_ context.Context, rulesetID string, enableIDs, disableIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.staticCalls++
	if s.staticErr != nil {
		return s.staticErr
	}
	rs, ok := s.rulesets[rulesetID]
	if !ok {
		return fmt.Errorf("%w: %s", substrate.ErrRulesetNotFound, rulesetID)
	}

	disabled := make(map[int]bool, len(rs.disabled))
	for ruleID := range rs.disabled {
		disabled[ruleID] = true
	}
	for _, ruleID := range enableIDs {
		delete(disabled, ruleID)
	}
	for _, ruleID := range disableIDs {
		if rs.ids[ruleID] {
			disabled[ruleID] = true
		}
	}

	if s.disabledLimit > 0 {
		total := len(disabled)
		for otherID, other := range s.rulesets {
			if otherID != rulesetID {
				total += len(other.disabled)
			}
		}
		if total > s.disabledLimit {
			return fmt.Errorf("%w: %d over %d", substrate.ErrDisabledRuleLimit, total, s.disabledLimit)
		}
	}
	rs.disabled = disabled
	return nil
}

// UpdateEnabledRulesets toggles whole rulesets.
func (s *Substrate) UpdateEnabledRulesets(_ context.Context, enable, disable []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.staticCalls++
	if s.staticErr != nil {
		return s.staticErr
	}
	for _, rulesetID := range slices.Concat(enable, disable) {
		if _, ok := s.rulesets[rulesetID]; !ok {
			return fmt.Errorf("%w: %s", substrate.ErrRulesetNotFound, rulesetID)
		}
	}
	for _, rulesetID := range disable {
		s.rulesets[rulesetID].enabled = false
	}
	for _, rulesetID := range enable {
		s.rulesets[rulesetID].enabled = true
	}
	return nil
}

// Quota returns the dynamic rule quota.
func (s *Substrate) Quota(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota, nil
}

// LiveRuleCount returns dynamic plus session rules.
func (s *Substrate) LiveRuleCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dynamic) + s.sessionRules, nil
}

// IsRegexSupported reports whether pattern is accepted.
func (s *Substrate) IsRegexSupported(_ context.Context, pattern string) (bool, error) {
	return s.regexOK(pattern), nil
}

// ──────────────────────────────────────────────────
// Test controls
// ──────────────────────────────────────────────────

// SetQuota changes the quota, e.g. to simulate a platform downgrade.
func (s *Substrate) SetQuota(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota = n
}

// FailDynamic makes every dynamic batch fail with err until cleared with nil.
func (s *Substrate) FailDynamic(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynamicErr = err
}

// FailStatic makes every static toggle fail with err until cleared with nil.
func (s *Substrate) FailStatic(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticErr = err
}

// Hold parks the next dynamic batch. entered is closed once the batch is
// parked; the batch proceeds after release is called.
func (s *Substrate) Hold() (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.hold = h
	s.mu.Unlock()

	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

// DynamicCalls returns the number of dynamic batches received.
func (s *Substrate) DynamicCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dynamicCalls
}

// StaticCalls returns the number of static toggles received.
func (s *Substrate) StaticCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staticCalls
}

// Rules returns the installed dynamic rules sorted by id.
func (s *Substrate) Rules() []rule.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]rule.Rule, 0, len(s.dynamic))
	for _, r := range s.dynamic {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RuleIDs returns the installed dynamic rule ids sorted.
func (s *Substrate) RuleIDs() []int {
	return rule.IDs(s.Rules())
}

// RulesetEnabled reports whether a ruleset is enabled.
func (s *Substrate) RulesetEnabled(rulesetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.rulesets[rulesetID]
	return ok && rs.enabled
}

// StaticRuleActive reports whether a static rule is enforced.
func (s *Substrate) StaticRuleActive(rulesetID string, ruleID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.rulesets[rulesetID]
	return ok && rs.enabled && rs.ids[ruleID] && !rs.disabled[ruleID]
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
