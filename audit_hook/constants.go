package audithook

// Action constants for audit events.
const (
	// Subscription actions
	ActionSubscriptionSynced   = "subscription.synced"
	ActionSubscriptionRejected = "subscription.rejected"
	ActionSyncFailed           = "subscription.sync_failed"

	// Filter actions
	ActionFiltersAdded    = "filters.added"
	ActionFiltersRemoved  = "filters.removed"
	ActionFiltersDisabled = "filters.disabled"
	ActionFiltersEnabled  = "filters.enabled"

	// Quota actions
	ActionQuotaOverrun = "quota.overrun"
)

// Resource constants for audit events.
const (
	ResourceSubscription = "subscription"
	ResourceFilter       = "filter"
	ResourceQuota        = "quota"
)

// Category constants for audit events.
const (
	CategorySync   = "sync"
	CategoryFilter = "filter"
	CategoryBudget = "budget"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
