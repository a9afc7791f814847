// Package observability provides a metrics plugin for rulesync that
// records reconciliation counts and latencies via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/rulesync/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionUpdated = (*MetricsExtension)(nil)
	_ plugin.OnFiltersChanged      = (*MetricsExtension)(nil)
	_ plugin.OnBudgetExceeded      = (*MetricsExtension)(nil)
	_ plugin.OnSyncFailed          = (*MetricsExtension)(nil)
	_ plugin.OnQuotaOverrun        = (*MetricsExtension)(nil)
	_ plugin.OnLedgerSaved         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide reconciliation metrics.
// Register it as a rulesync plugin.
type MetricsExtension struct {
	factory MetricFactory

	// Subscription metrics
	FullUpdates     Counter
	DiffUpdates     Counter
	OtherUpdates    Counter
	UpdateLatency   Histogram
	FiltersAdded    Counter
	FiltersRemoved  Counter
	FiltersInvalid  Counter
	BudgetExceeded  Counter
	SyncFailures    Counter
	BatchRulesAdded Histogram

	// Rule metrics
	RulesAdded   Counter
	RulesRemoved Counter

	// Individual filter metrics
	FilterOps Counter

	// Quota metrics
	QuotaOverruns   Counter
	FiltersDisabled Counter

	// Persistence metrics
	LedgerSaves       Counter
	LedgerSaveLatency Histogram
	LedgerRecords     Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory to export through a Prometheus registry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Subscription metrics
		FullUpdates:     factory.Counter("rulesync.update.full"),
		DiffUpdates:     factory.Counter("rulesync.update.diff"),
		OtherUpdates:    factory.Counter("rulesync.update.lifecycle"),
		UpdateLatency:   factory.Histogram("rulesync.update.latency_ms"),
		FiltersAdded:    factory.Counter("rulesync.filters.added"),
		FiltersRemoved:  factory.Counter("rulesync.filters.removed"),
		FiltersInvalid:  factory.Counter("rulesync.filters.invalid"),
		BudgetExceeded:  factory.Counter("rulesync.budget.exceeded"),
		SyncFailures:    factory.Counter("rulesync.sync.failures"),
		BatchRulesAdded: factory.Histogram("rulesync.batch.rules_added"),

		// Rule metrics
		RulesAdded:   factory.Counter("rulesync.rules.added"),
		RulesRemoved: factory.Counter("rulesync.rules.removed"),

		// Individual filter metrics
		FilterOps: factory.Counter("rulesync.filters.ops"),

		// Quota metrics
		QuotaOverruns:   factory.Counter("rulesync.quota.overruns"),
		FiltersDisabled: factory.Counter("rulesync.quota.filters_disabled"),

		// Persistence metrics
		LedgerSaves:       factory.Counter("rulesync.ledger.saves"),
		LedgerSaveLatency: factory.Histogram("rulesync.ledger.save.latency_ms"),
		LedgerRecords:     factory.Histogram("rulesync.ledger.records"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (m *MetricsExtension) OnSubscriptionUpdated(_ context.Context, ev *plugin.UpdateEvent) error {
	switch ev.Mode {
	case "full":
		m.FullUpdates.Inc()
	case "diff":
		m.DiffUpdates.Inc()
	default:
		m.OtherUpdates.Inc()
	}
	m.UpdateLatency.Observe(float64(ev.Elapsed.Milliseconds()))
	m.FiltersAdded.Add(float64(len(ev.Added)))
	m.FiltersRemoved.Add(float64(len(ev.Removed)))
	m.FiltersInvalid.Add(float64(ev.Invalid))
	m.recordRules(len(ev.AddedRuleIDs), len(ev.RemovedRuleIDs))
	return nil
}

// OnFiltersChanged implements plugin.OnFiltersChanged.
func (m *MetricsExtension) OnFiltersChanged(_ context.Context, ev *plugin.FiltersEvent) error {
	m.FilterOps.Inc()
	m.FiltersInvalid.Add(float64(ev.Invalid))
	m.recordRules(len(ev.AddedRuleIDs), len(ev.RemovedRuleIDs))
	return nil
}

// OnBudgetExceeded implements plugin.OnBudgetExceeded.
func (m *MetricsExtension) OnBudgetExceeded(_ context.Context, _ string, _, _ int) error {
	m.BudgetExceeded.Inc()
	return nil
}

// OnSyncFailed implements plugin.OnSyncFailed.
func (m *MetricsExtension) OnSyncFailed(_ context.Context, _ string, _ error) error {
	m.SyncFailures.Inc()
	return nil
}

// OnQuotaOverrun implements plugin.OnQuotaOverrun.
func (m *MetricsExtension) OnQuotaOverrun(_ context.Context, disabled []string, _ int) error {
	m.QuotaOverruns.Inc()
	m.FiltersDisabled.Add(float64(len(disabled)))
	return nil
}

// ──────────────────────────────────────────────────
// Persistence hooks
// ──────────────────────────────────────────────────

// OnLedgerSaved implements plugin.OnLedgerSaved.
func (m *MetricsExtension) OnLedgerSaved(_ context.Context, records int, elapsed time.Duration) error {
	m.LedgerSaves.Inc()
	m.LedgerSaveLatency.Observe(float64(elapsed.Milliseconds()))
	m.LedgerRecords.Observe(float64(records))
	return nil
}

func (m *MetricsExtension) recordRules(added, removed int) {
	m.RulesAdded.Add(float64(added))
	m.RulesRemoved.Add(float64(removed))
	m.BatchRulesAdded.Observe(float64(added))
}
