package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

func TestLedgerDocument(t *testing.T) {
	st := &ownership.State{
		HighestRuleID: 2,
		Records: []ownership.Record{
			{Text: "||a.example^", RuleIDs: []int{1}, Owners: []string{"easylist"}, Enabled: true},
			{Text: "||b.example^", RuleIDs: []int{2}, Owners: []string{"easylist"}, Enabled: true},
		},
	}

	m, err := toLedgerModel(st)
	require.NoError(t, err)

	doc := m.document()
	assert.Equal(t, store.LedgerKey, doc["_id"])
	assert.Equal(t, 2, doc["records"])
	assert.Equal(t, 2, doc["highest_rule_id"])

	got, err := fromLedgerModel(m)
	require.NoError(t, err)
	assert.Equal(t, st.Records, got.Records)
}
