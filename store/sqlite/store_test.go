package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/id"
	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

func TestLedgerModel(t *testing.T) {
	st := &ownership.State{
		Revision:      id.NewRevisionID(),
		HighestRuleID: 7,
		Records: []ownership.Record{
			{Text: "||ads.example^", RuleIDs: []int{7}, Owners: []string{ownership.UserOwner}, Enabled: true},
		},
		SavedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	m, err := toLedgerModel(st)
	require.NoError(t, err)
	assert.Equal(t, store.LedgerKey, m.Key)
	assert.Equal(t, st.Revision.String(), m.Revision)
	assert.Equal(t, 1, m.Records)

	got, err := fromLedgerModel(m)
	require.NoError(t, err)
	assert.Equal(t, st.Revision, got.Revision)
	assert.Equal(t, 7, got.HighestRuleID)
	assert.Equal(t, st.Records, got.Records)
}

func TestLedgerModelRevisionColumn(t *testing.T) {
	rev := id.NewRevisionID()
	got, err := fromLedgerModel(&ledgerModel{Revision: rev.String(), Data: `{"highest_rule_id":3}`})
	require.NoError(t, err)
	assert.Equal(t, rev, got.Revision)
	assert.Equal(t, 3, got.HighestRuleID)

	_, err = fromLedgerModel(&ledgerModel{Data: "{"})
	assert.Error(t, err)
}
