package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/plugin"
)

func TestMetricsExtensionRecordsUpdates(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	factory := NewPrometheusFactory(reg)
	m := NewMetricsExtension(factory)

	require.NoError(t, m.OnSubscriptionUpdated(ctx, &plugin.UpdateEvent{
		Mode:           "diff",
		Added:          []string{"a", "b"},
		AddedRuleIDs:   []int{1, 2},
		RemovedRuleIDs: []int{7},
		Invalid:        1,
		Elapsed:        3 * time.Millisecond,
	}))
	require.NoError(t, m.OnBudgetExceeded(ctx, "s1", 4, 3))
	require.NoError(t, m.OnSyncFailed(ctx, "s1", errors.New("boom")))
	require.NoError(t, m.OnQuotaOverrun(ctx, []string{"x", "y"}, 10))

	assert.InDelta(t, 1, value(factory, "rulesync.update.diff"), 0)
	assert.InDelta(t, 0, value(factory, "rulesync.update.full"), 0)
	assert.InDelta(t, 2, value(factory, "rulesync.rules.added"), 0)
	assert.InDelta(t, 1, value(factory, "rulesync.rules.removed"), 0)
	assert.InDelta(t, 1, value(factory, "rulesync.filters.invalid"), 0)
	assert.InDelta(t, 1, value(factory, "rulesync.budget.exceeded"), 0)
	assert.InDelta(t, 1, value(factory, "rulesync.sync.failures"), 0)
	assert.InDelta(t, 2, value(factory, "rulesync.quota.filters_disabled"), 0)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := NewPrometheusFactory(reg).Counter("rulesync.ledger.saves")
	b := NewPrometheusFactory(reg).Counter("rulesync.ledger.saves")
	a.Inc()
	b.Inc()

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "rulesync_ledger_saves_total"))
	assert.InDelta(t, 2, testutil.ToFloat64(a.(prometheus.Counter)), 0)
}

func value(f *PrometheusFactory, name string) float64 {
	return testutil.ToFloat64(f.Counter(name).(prometheus.Counter))
}
