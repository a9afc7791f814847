package rulesync

import (
	"errors"
	"fmt"

	"github.com/xraph/rulesync/compiler"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound        = errors.New("rulesync: not found")
	ErrInvalidInput    = errors.New("rulesync: invalid input")
	ErrUnsupportedKind = errors.New("rulesync: unsupported subscription kind")
	ErrNotStarted      = errors.New("rulesync: engine not started")

	// Filter errors
	ErrFilterNotFound = errors.New("rulesync: filter not found")

	// Full update errors
	ErrTooManyFilters = errors.New("rulesync: too many filters")
	ErrSynchronize    = errors.New("rulesync: synchronize error")

	// Diff update errors
	ErrDiffTooManyFilters = errors.New("rulesync: diff too many filters")
	ErrDiffSynchronize    = errors.New("rulesync: diff synchronize error")
)

// FilterError reports why a single filter was rejected.
type FilterError = compiler.FilterError

// BudgetError is returned when a batch does not fit the remaining quota.
// Kind is ErrTooManyFilters or ErrDiffTooManyFilters. Cause is set when the
// substrate refused a static toggle for exceeding its disabled rule limit.
type BudgetError struct {
	Kind      error
	Needed    int
	Available int
	Cause     error
}

func (e *BudgetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%v: need %d rules, %d available", e.Kind, e.Needed, e.Available)
}

// Unwrap exposes Kind and Cause to errors.Is.
func (e *BudgetError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// SyncError is returned when a substrate batch fails. Kind is
// ErrSynchronize or ErrDiffSynchronize.
type SyncError struct {
	Kind  error
	Cause error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

// Unwrap exposes Kind and Cause to errors.Is.
func (e *SyncError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

// IsBudgetError returns true if err rejected a batch for lack of quota.
func IsBudgetError(err error) bool {
	return errors.Is(err, ErrTooManyFilters) ||
		errors.Is(err, ErrDiffTooManyFilters)
}

// IsSyncError returns true if err is a failed substrate batch.
func IsSyncError(err error) bool {
	return errors.Is(err, ErrSynchronize) ||
		errors.Is(err, ErrDiffSynchronize)
}

// IsDiffError returns true if err came from a diff update, in which case
// callers may fall back to a full update.
func IsDiffError(err error) bool {
	return errors.Is(err, ErrDiffTooManyFilters) ||
		errors.Is(err, ErrDiffSynchronize)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrFilterNotFound)
}
