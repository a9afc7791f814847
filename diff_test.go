package rulesync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/staticrules"
	"github.com/xraph/rulesync/subscription"
	memsub "github.com/xraph/rulesync/substrate/memory"
)

func TestDiffUpdateWithinBudget(t *testing.T) {
	ctx := context.Background()
	sub := memsub.New(memsub.WithQuota(3))
	e, _ := startEngine(t, sub)
	s := newSub("custom", subscription.KindDiff)

	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(1), blocking(2)}})
	require.NoError(t, err)

	_, err = e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(3), blocking(4)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiffTooManyFilters)
	assert.True(t, IsDiffError(err))
	assert.Equal(t, subscription.StatusDiffTooManyFilters, s.Status)
	assert.Equal(t, []string{blocking(1), blocking(2)}, s.Filters)
	assert.Len(t, e.Snapshot().Records, 2)

	res, err := e.DiffUpdate(ctx, s, subscription.Diff{Removed: []string{blocking(1)}})
	require.NoError(t, err)
	assert.Equal(t, []string{blocking(1)}, res.Removed)
	assert.Equal(t, []string{blocking(2)}, s.Filters)
	assert.Equal(t, subscription.StatusSynced, s.Status)

	available, err := e.Available(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	res, err = e.DiffUpdate(ctx, s, subscription.Diff{
		Added:   []string{blocking(3)},
		Removed: []string{blocking(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{blocking(3)}, res.Added)
	assert.Equal(t, []string{blocking(2)}, res.Removed)
	assert.Equal(t, []string{blocking(3)}, s.Filters)

	available, err = e.Available(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestDiffUpdateEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	sub := memsub.New()
	e, _ := startEngine(t, sub)
	s := newSub("custom", subscription.KindDiff)

	res, err := e.DiffUpdate(ctx, s, subscription.Diff{})
	require.NoError(t, err)
	assert.False(t, res.Dropped)
	assert.Empty(t, res.Added)
	assert.Equal(t, 0, sub.DynamicCalls())
}

func TestDiffUpdateIgnoresUnknownRemovals(t *testing.T) {
	ctx := context.Background()
	sub := memsub.New()
	e, _ := startEngine(t, sub)
	s := newSub("custom", subscription.KindDiff)

	res, err := e.DiffUpdate(ctx, s, subscription.Diff{Removed: []string{blocking(7)}})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Equal(t, 0, sub.DynamicCalls())
}

func TestDiffUpdateDropsConcurrentCall(t *testing.T) {
	ctx := context.Background()
	sub := memsub.New()
	e, _ := startEngine(t, sub)
	s := newSub("custom", subscription.KindDiff)

	entered, release := sub.Hold()
	defer release()

	type outcome struct {
		res *UpdateResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(1)}})
		first <- outcome{res, err}
	}()
	<-entered

	res, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(2)}})
	require.NoError(t, err)
	assert.True(t, res.Dropped)

	release()
	got := <-first
	require.NoError(t, got.err)
	assert.False(t, got.res.Dropped)

	assert.Equal(t, 1, sub.DynamicCalls())
	_, ok := e.Lookup(blocking(2))
	assert.False(t, ok)

	// The guard is released once the first call returns.
	res, err = e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(2)}})
	require.NoError(t, err)
	assert.False(t, res.Dropped)
	assert.Equal(t, []string{blocking(1), blocking(2)}, s.Filters)
}

func TestDiffUpdateRequiresDiffKind(t *testing.T) {
	e, _ := startEngine(t, memsub.New())

	_, err := e.DiffUpdate(context.Background(), newSub("full", subscription.KindFull), subscription.Diff{Added: []string{blocking(1)}})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestDiffUpdateFallsBackToFullUpdate(t *testing.T) {
	ctx := context.Background()
	sub := memsub.New()
	e, _ := startEngine(t, sub)
	s := newSub("custom", subscription.KindDiff)

	sub.FailDynamic(errors.New("transient"))
	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(1)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiffSynchronize)
	assert.Equal(t, subscription.StatusDiffSynchronizeError, s.Status)

	sub.FailDynamic(nil)
	res, err := e.FullUpdate(ctx, s, []string{blocking(1)})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, subscription.StatusSynced, s.Status)
}

// ──────────────────────────────────────────────────
// Bundled rulesets
// ──────────────────────────────────────────────────

const (
	staticOne = "||static1.example^"
	staticTwo = "||static2.example^"
)

func staticSetup(t *testing.T, opts ...memsub.Option) (*Engine, *memsub.Substrate) {
	t.Helper()
	opts = append([]memsub.Option{memsub.WithRuleset("base", []int{10, 11, 12}, true)}, opts...)
	sub := memsub.New(opts...)
	e, _ := startEngine(t, sub, WithStaticLoader(staticrules.MapLoader{
		"base": {
			staticOne: {10},
			staticTwo: {11, 12},
		},
	}))
	return e, sub
}

func TestDiffUpdatePrefersStaticRules(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	res, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{staticOne, blocking(1)}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.AddedRuleIDs)

	rec, ok := e.Lookup(staticOne)
	require.True(t, ok)
	require.NotNil(t, rec.Static)
	assert.Equal(t, "base", rec.Static.RulesetID)
	assert.Empty(t, rec.RuleIDs)
	assert.Equal(t, []int{1}, sub.RuleIDs())

	res, err = e.DiffUpdate(ctx, s, subscription.Diff{Removed: []string{staticTwo}})
	require.NoError(t, err)
	assert.Equal(t, []string{staticTwo}, res.Removed)
	assert.Equal(t, []int{11, 12}, res.StaticDisabled)
	assert.False(t, sub.StaticRuleActive("base", 11))
	assert.False(t, sub.StaticRuleActive("base", 12))

	res, err = e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{staticTwo}})
	require.NoError(t, err)
	assert.Equal(t, []int{11, 12}, res.StaticEnabled)
	assert.True(t, sub.StaticRuleActive("base", 11))

	_, err = e.DiffUpdate(ctx, s, subscription.Diff{Removed: []string{staticOne}})
	require.NoError(t, err)
	_, ok = e.Lookup(staticOne)
	assert.False(t, ok)
	assert.False(t, sub.StaticRuleActive("base", 10))
}

func TestDiffUpdateRevertsStaticTogglesOnFailure(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	sub.FailDynamic(errors.New("transient"))
	_, err := e.DiffUpdate(ctx, s, subscription.Diff{
		Added:   []string{blocking(1)},
		Removed: []string{staticTwo},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiffSynchronize)

	assert.True(t, sub.StaticRuleActive("base", 11))
	assert.True(t, sub.StaticRuleActive("base", 12))
	assert.Nil(t, s.Filters)
}

func TestSharedStaticRecordFallsBackToDynamic(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{staticOne}})
	require.NoError(t, err)
	_, err = e.AddFilters(ctx, []string{staticOne}, nil)
	require.NoError(t, err)

	res, err := e.DiffUpdate(ctx, s, subscription.Diff{Removed: []string{staticOne}})
	require.NoError(t, err)
	assert.Len(t, res.AddedRuleIDs, 1)

	rec, ok := e.Lookup(staticOne)
	require.True(t, ok)
	assert.Nil(t, rec.Static)
	assert.Equal(t, []string{UserOwner}, rec.Owners)
	assert.Len(t, rec.RuleIDs, 1)
	assert.False(t, sub.StaticRuleActive("base", 10))
}
