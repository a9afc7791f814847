// Package budget gates rule allocation against the substrate's dynamic
// rule quota.
package budget

import (
	"context"
	"fmt"
)

// Policy decides whether rules the substrate reports beyond those tracked
// in the ledger (session rules, rules added by other code) count against
// the budget.
type Policy string

const (
	// IncludeUntracked counts every live rule the substrate reports.
	IncludeUntracked Policy = "include_untracked"
	// LedgerOnly counts only rule ids recorded in the ledger.
	LedgerOnly Policy = "ledger_only"
)

// ParsePolicy parses a policy name. The empty string selects the default.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", IncludeUntracked:
		return IncludeUntracked, nil
	case LedgerOnly:
		return LedgerOnly, nil
	default:
		return "", fmt.Errorf("budget: unknown policy %q", s)
	}
}

// Source reports the substrate's quota and live rule count.
type Source interface {
	Quota(ctx context.Context) (int, error)
	LiveRuleCount(ctx context.Context) (int, error)
}

// Counter reports the number of rule ids the ledger holds.
type Counter interface {
	RuleCount() int
}

// Check is the outcome of CanApply.
type Check struct {
	Needed    int
	Available int `json:"available"`
	OK        bool
}

// Usage breaks down how the quota is consumed.
type Usage struct {
	Quota     int `json:"quota"`
	Tracked   int `json:"tracked"`
	Untracked int `json:"untracked"`
	Available int `json:"available"`
}

// Manager computes remaining capacity. It holds no cached state; the
// substrate is queried on every call.
type Manager struct {
	source  Source
	counter Counter
	policy  Policy
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy sets the session rule policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// New creates a Manager.
func New(source Source, counter Counter, opts ...Option) *Manager {
	m := &Manager{
		source:  source,
		counter: counter,
		policy:  IncludeUntracked,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the configured policy.
func (m *Manager) Policy() Policy { return m.policy }

// Usage returns the current quota breakdown. Available may be negative
// when the quota shrank below what is allocated.
func (m *Manager) Usage(ctx context.Context) (Usage, error) {
	quota, err := m.source.Quota(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("budget: quota: %w", err)
	}

	u := Usage{Quota: quota, Tracked: m.counter.RuleCount()}
	if m.policy == IncludeUntracked {
		live, err := m.source.LiveRuleCount(ctx)
		if err != nil {
			return Usage{}, fmt.Errorf("budget: live rule count: %w", err)
		}
		u.Untracked = max(0, live-u.Tracked)
	}
	u.Available = u.Quota - u.Tracked - u.Untracked
	return u, nil
}

// Available returns quota minus used rules.
func (m *Manager) Available(ctx context.Context) (int, error) {
	u, err := m.Usage(ctx)
	if err != nil {
		return 0, err
	}
	return u.Available, nil
}

// CanApply reports whether a batch with the given net rule delta fits.
// A non-positive delta always fits.
func (m *Manager) CanApply(ctx context.Context, net int) (Check, error) {
	available, err := m.Available(ctx)
	if err != nil {
		return Check{}, err
	}
	return Check{
		Needed:    net,
		Available: available,
		OK:        net <= 0 || net <= available,
	}, nil
}
