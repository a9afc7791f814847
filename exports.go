package rulesync

import (
	"github.com/xraph/rulesync/budget"
	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/subscription"
)

// Re-export common types so callers rarely need the subpackages.

// Record is re-exported from the ownership package.
type Record = ownership.Record

// State is re-exported from the ownership package.
type State = ownership.State

// Subscription is re-exported from the subscription package.
type Subscription = subscription.Subscription

// Diff is re-exported from the subscription package.
type Diff = subscription.Diff

// Usage is re-exported from the budget package.
type Usage = budget.Usage

// UserOwner owns filters added through AddFilters.
const UserOwner = ownership.UserOwner

// Re-export budget policies
const (
	IncludeUntracked = budget.IncludeUntracked
	LedgerOnly       = budget.LedgerOnly
)
