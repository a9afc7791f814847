// Package substrate defines the declarative rule enforcement engine the
// reconcilers drive. Every call is a whole batch: it succeeds or fails as a
// unit and there is no rollback.
package substrate

import (
	"context"
	"errors"

	"github.com/xraph/rulesync/rule"
)

var (
	// ErrDisabledRuleLimit is returned when a static rule toggle would
	// exceed the number of individually disabled static rules the
	// substrate supports.
	ErrDisabledRuleLimit = errors.New("substrate: disabled static rule limit exceeded")
	// ErrRulesetNotFound is returned for an unknown bundled ruleset.
	ErrRulesetNotFound = errors.New("substrate: ruleset not found")
	// ErrQuotaExceeded is returned when a dynamic batch does not fit.
	ErrQuotaExceeded = errors.New("substrate: dynamic rule quota exceeded")
	// ErrDuplicateRuleID is returned when a batch adds an id already in use.
	ErrDuplicateRuleID = errors.New("substrate: duplicate rule id")
)

// Substrate is the enforcement substrate.
type Substrate interface {
	// UpdateDynamicRules removes removeIDs and adds add in one batch.
	UpdateDynamicRules(ctx context.Context, add []rule.Rule, removeIDs []int) error
	// DisabledStaticRuleIDs lists the individually disabled rules of a
	// bundled ruleset.
	DisabledStaticRuleIDs(ctx context.Context, rulesetID string) ([]int, error)
	// UpdateStaticRules toggles individual rules of a bundled ruleset.
	UpdateStaticRules(ctx context.Context, rulesetID string, enableIDs, disableIDs []int) error
	// UpdateEnabledRulesets toggles whole bundled rulesets.
	UpdateEnabledRulesets(ctx context.Context, enable, disable []string) error
	// Quota returns the ceiling on dynamic rules.
	Quota(ctx context.Context) (int, error)
	// LiveRuleCount returns the number of dynamic and session rules
	// currently installed.
	LiveRuleCount(ctx context.Context) (int, error)
	// IsRegexSupported reports whether a regex condition can be installed.
	IsRegexSupported(ctx context.Context, pattern string) (bool, error)
}
