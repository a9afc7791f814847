package audithook

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/plugin"
)

func capture() (*[]*AuditEvent, Recorder) {
	var events []*AuditEvent
	return &events, RecorderFunc(func(_ context.Context, ev *AuditEvent) error {
		events = append(events, ev)
		return nil
	})
}

func TestSubscriptionEvents(t *testing.T) {
	ctx := context.Background()
	events, rec := capture()
	ext := New(rec)

	require.NoError(t, ext.OnSubscriptionUpdated(ctx, &plugin.UpdateEvent{
		SubscriptionID: "easylist",
		Mode:           "full",
		Added:          []string{"a"},
		Invalid:        1,
	}))
	require.NoError(t, ext.OnBudgetExceeded(ctx, "easylist", 5, 2))
	require.NoError(t, ext.OnSyncFailed(ctx, "easylist", errors.New("boom")))

	require.Len(t, *events, 3)

	synced := (*events)[0]
	assert.Equal(t, ActionSubscriptionSynced, synced.Action)
	assert.Equal(t, OutcomePartial, synced.Outcome)
	assert.Equal(t, "easylist", synced.ResourceID)
	assert.Equal(t, "full", synced.Metadata["mode"])

	rejected := (*events)[1]
	assert.Equal(t, ActionSubscriptionRejected, rejected.Action)
	assert.Equal(t, 5, rejected.Metadata["needed"])

	failed := (*events)[2]
	assert.Equal(t, SeverityError, failed.Severity)
	assert.Equal(t, "boom", failed.Reason)
}

func TestFilterEvents(t *testing.T) {
	ctx := context.Background()
	events, rec := capture()
	ext := New(rec)

	require.NoError(t, ext.OnFiltersChanged(ctx, &plugin.FiltersEvent{Op: "disable", Texts: []string{"a"}}))
	require.NoError(t, ext.OnFiltersChanged(ctx, &plugin.FiltersEvent{Op: "unknown"}))

	require.Len(t, *events, 1)
	assert.Equal(t, ActionFiltersDisabled, (*events)[0].Action)
}

func TestEnabledActions(t *testing.T) {
	ctx := context.Background()
	events, rec := capture()
	ext := New(rec, WithEnabledActions(ActionQuotaOverrun))

	require.NoError(t, ext.OnSyncFailed(ctx, "s1", errors.New("boom")))
	require.NoError(t, ext.OnQuotaOverrun(ctx, []string{"a"}, 10))

	require.Len(t, *events, 1)
	assert.Equal(t, ActionQuotaOverrun, (*events)[0].Action)
}

func TestDisabledActions(t *testing.T) {
	ctx := context.Background()
	events, rec := capture()
	ext := New(rec, WithDisabledActions(ActionSyncFailed))

	require.NoError(t, ext.OnSyncFailed(ctx, "s1", errors.New("boom")))
	require.NoError(t, ext.OnBudgetExceeded(ctx, "s1", 1, 0))

	require.Len(t, *events, 1)
	assert.Equal(t, ActionSubscriptionRejected, (*events)[0].Action)
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}), WithLogger(slog.New(slog.DiscardHandler)))

	assert.NoError(t, ext.OnQuotaOverrun(context.Background(), nil, 1))
}
