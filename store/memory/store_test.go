package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

func TestLoadEmpty(t *testing.T) {
	_, err := New().LoadLedger(context.Background())
	assert.ErrorIs(t, err, store.ErrNoLedger)
}

func TestSaveLoadIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()

	st := &ownership.State{
		HighestRuleID: 3,
		Records: []ownership.Record{
			{Text: "||a.example^", RuleIDs: []int{3}, Owners: []string{"sub1"}, Enabled: true},
		},
	}
	require.NoError(t, s.SaveLedger(ctx, st))
	st.Records[0].Owners[0] = "mutated"

	got, err := s.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.HighestRuleID)
	assert.Equal(t, []string{"sub1"}, got.Records[0].Owners)
	assert.Equal(t, 1, s.Saves())
}

func TestFailSave(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")

	s.FailSave(boom)
	assert.ErrorIs(t, s.SaveLedger(ctx, &ownership.State{}), boom)

	s.FailSave(nil)
	assert.NoError(t, s.SaveLedger(ctx, &ownership.State{}))
}
