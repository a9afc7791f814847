package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

type ledgerModel struct {
	grove.BaseModel `grove:"table:rulesync_ledger"`

	Key           string          `grove:"key,pk"`
	Revision      string          `grove:"revision"`
	HighestRuleID int             `grove:"highest_rule_id"`
	Records       int             `grove:"records"`
	Data          json.RawMessage `grove:"data,type:jsonb"`
	SavedAt       time.Time       `grove:"saved_at"`
}

func toLedgerModel(st *ownership.State) (*ledgerModel, error) {
	data, err := store.Encode(st)
	if err != nil {
		return nil, fmt.Errorf("rulesync/postgres: encode ledger: %w", err)
	}
	return &ledgerModel{
		Key:           store.LedgerKey,
		Revision:      st.Revision.String(),
		HighestRuleID: st.HighestRuleID,
		Records:       len(st.Records),
		Data:          data,
		SavedAt:       st.SavedAt.UTC(),
	}, nil
}

func fromLedgerModel(m *ledgerModel) (*ownership.State, error) {
	return store.Decode(m.Data)
}
