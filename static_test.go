package rulesync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/subscription"
	"github.com/xraph/rulesync/substrate"
	memsub "github.com/xraph/rulesync/substrate/memory"
)

func TestDisableRulesRespectsSubstrateLimit(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t, memsub.WithDisabledRuleLimit(1))

	err := e.DisableRules(ctx, "base", []int{10, 11})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyFilters)
	assert.ErrorIs(t, err, substrate.ErrDisabledRuleLimit)
	assert.True(t, sub.StaticRuleActive("base", 10))

	require.NoError(t, e.DisableRules(ctx, "base", []int{10}))
	assert.False(t, sub.StaticRuleActive("base", 10))

	require.NoError(t, e.EnableRules(ctx, "base", []int{10}))
	assert.True(t, sub.StaticRuleActive("base", 10))

	assert.ErrorIs(t, e.DisableRules(ctx, "", []int{1}), ErrInvalidInput)
	assert.NoError(t, e.DisableRules(ctx, "base", nil))
}

func TestRulesetToggleFollowsBoundSubscriptions(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(1)}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sub.RuleIDs())

	require.NoError(t, e.DisableRuleset(ctx, "base"))
	assert.False(t, sub.RulesetEnabled("base"))
	assert.Empty(t, sub.RuleIDs())

	rec, ok := e.Lookup(blocking(1))
	require.True(t, ok)
	assert.Equal(t, []string{"custom"}, rec.Owners)

	require.NoError(t, e.EnableRuleset(ctx, "base"))
	assert.True(t, sub.RulesetEnabled("base"))
	assert.Equal(t, []int{2}, sub.RuleIDs())
}

func TestRulesetToggleFailureLeavesState(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)

	sub.FailStatic(errors.New("ruleset store busy"))
	err := e.DisableRuleset(ctx, "base")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynchronize)
	assert.True(t, sub.RulesetEnabled("base"))

	sub.FailStatic(nil)
	require.NoError(t, e.DisableRuleset(ctx, "base"))
	assert.False(t, sub.RulesetEnabled("base"))
}

func TestDisableSubscriptionMovesSharedStaticToDynamic(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{staticOne}})
	require.NoError(t, err)
	_, err = e.AddFilters(ctx, []string{staticOne}, nil)
	require.NoError(t, err)
	assert.Empty(t, sub.RuleIDs())

	res, err := e.DisableSubscription(ctx, s)
	require.NoError(t, err)
	assert.Len(t, res.AddedRuleIDs, 1)
	assert.False(t, sub.RulesetEnabled("base"))

	rec, _ := e.Lookup(staticOne)
	assert.Nil(t, rec.Static)
	assert.Len(t, rec.RuleIDs, 1)

	res, err = e.EnableSubscription(ctx, s)
	require.NoError(t, err)
	assert.Len(t, res.RemovedRuleIDs, 1)
	assert.True(t, sub.RulesetEnabled("base"))

	rec, _ = e.Lookup(staticOne)
	require.NotNil(t, rec.Static)
	assert.Empty(t, rec.RuleIDs)
	assert.Empty(t, sub.RuleIDs())
}

func TestRemoveSubscriptionDisablesRuleset(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{staticOne, blocking(1)}})
	require.NoError(t, err)

	res, err := e.RemoveSubscription(ctx, s)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{staticOne, blocking(1)}, res.Removed)
	assert.Equal(t, []int{1}, res.RemovedRuleIDs)

	assert.False(t, sub.RulesetEnabled("base"))
	assert.Empty(t, sub.RuleIDs())
	assert.Empty(t, e.Snapshot().Records)
	assert.Empty(t, e.Snapshot().Subscriptions)
}

// userStatic adds staticOne as a user filter served by the base ruleset.
func userStatic(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.EnableRuleset(ctx, "base"))
	added, err := e.AddFilters(ctx, []string{staticOne}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{staticOne}, added.Static)
}

// assertDynamic checks that staticOne left the bundled rules and is
// enforced by a dynamic rule instead.
func assertDynamic(t *testing.T, e *Engine, sub *memsub.Substrate) {
	t.Helper()
	rec, ok := e.Lookup(staticOne)
	require.True(t, ok)
	assert.Equal(t, []string{UserOwner}, rec.Owners)
	assert.True(t, rec.Enabled)
	assert.Nil(t, rec.Static)
	require.Len(t, rec.RuleIDs, 1)
	assert.Contains(t, sub.RuleIDs(), rec.RuleIDs[0])
}

func TestDisableRulesetMovesUserStaticToDynamic(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	userStatic(t, e)
	assert.Empty(t, sub.RuleIDs())

	require.NoError(t, e.DisableRuleset(ctx, "base"))
	assert.False(t, sub.RulesetEnabled("base"))
	assertDynamic(t, e, sub)
}

func TestDisableRulesetOverBudgetKeepsRuleset(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t, memsub.WithQuota(0))
	userStatic(t, e)

	err := e.DisableRuleset(ctx, "base")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyFilters)
	assert.True(t, sub.RulesetEnabled("base"))

	rec, _ := e.Lookup(staticOne)
	require.NotNil(t, rec.Static)
	assert.Empty(t, rec.RuleIDs)
}

func TestDisableRulesMovesUserStaticToDynamic(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	userStatic(t, e)

	require.NoError(t, e.DisableRules(ctx, "base", []int{11}))
	rec, _ := e.Lookup(staticOne)
	require.NotNil(t, rec.Static)

	require.NoError(t, e.DisableRules(ctx, "base", []int{10}))
	assert.False(t, sub.StaticRuleActive("base", 10))
	assertDynamic(t, e, sub)
}

func TestDisableSubscriptionMovesUserOwnedStaticToDynamic(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	userStatic(t, e)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{blocking(1)}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sub.RuleIDs())

	res, err := e.DisableSubscription(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.RemovedRuleIDs)
	assert.Equal(t, []int{2}, res.AddedRuleIDs)
	assert.False(t, sub.RulesetEnabled("base"))
	assertDynamic(t, e, sub)
}

func TestRemoveSubscriptionMovesUserOwnedStaticToDynamic(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	userStatic(t, e)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	_, err := e.DiffUpdate(ctx, s, subscription.Diff{Added: []string{staticTwo}})
	require.NoError(t, err)

	res, err := e.RemoveSubscription(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{staticTwo}, res.Removed)
	assert.False(t, sub.RulesetEnabled("base"))
	assertDynamic(t, e, sub)

	_, ok := e.Lookup(staticTwo)
	assert.False(t, ok)
}

func TestDiffRemovalKeepsStaticRulesOtherOwnersUse(t *testing.T) {
	ctx := context.Background()
	e, sub := staticSetup(t)
	userStatic(t, e)
	s := newSub("custom", subscription.KindDiff)
	s.RulesetID = "base"

	res, err := e.DiffUpdate(ctx, s, subscription.Diff{Removed: []string{staticOne, staticTwo}})
	require.NoError(t, err)
	assert.Equal(t, []string{staticOne, staticTwo}, res.Removed)
	assert.Equal(t, []int{11, 12}, res.StaticDisabled)
	assert.True(t, sub.StaticRuleActive("base", 10))
	assert.False(t, sub.StaticRuleActive("base", 11))

	rec, ok := e.Lookup(staticOne)
	require.True(t, ok)
	require.NotNil(t, rec.Static)
	assert.Equal(t, []string{UserOwner}, rec.Owners)
}
