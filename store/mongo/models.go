package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

type ledgerModel struct {
	grove.BaseModel `grove:"table:rulesync_ledger"`

	Key           string    `grove:"key,pk"          bson:"_id"`
	Revision      string    `grove:"revision"        bson:"revision"`
	HighestRuleID int       `grove:"highest_rule_id" bson:"highest_rule_id"`
	Records       int       `grove:"records"         bson:"records"`
	Data          []byte    `grove:"data"            bson:"data"`
	SavedAt       time.Time `grove:"saved_at"        bson:"saved_at"`
}

func toLedgerModel(st *ownership.State) (*ledgerModel, error) {
	data, err := store.Encode(st)
	if err != nil {
		return nil, fmt.Errorf("rulesync/mongo: encode ledger: %w", err)
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

// document is the replacement body written by SaveLedger.
func (m *ledgerModel) document() bson.M {
	return bson.M{
		"_id":             m.Key,
		"revision":        m.Revision,
		"highest_rule_id": m.HighestRuleID,
		"records":         m.Records,
		"data":            m.Data,
		"saved_at":        m.SavedAt,
	}
}

func fromLedgerModel(m *ledgerModel) (*ownership.State, error) {
	return store.Decode(m.Data)
}
