// Package sqlite persists the ownership ledger in SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/rulesync/id"
	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type ledgerModel struct {
	grove.BaseModel `grove:"table:rulesync_ledger"`

	Key           string    `grove:"key,pk"`
	Revision      string    `grove:"revision"`
	HighestRuleID int       `grove:"highest_rule_id"`
	Records       int       `grove:"records"`
	Data          string    `grove:"data"`
	SavedAt       time.Time `grove:"saved_at"`
}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the ledger table using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("rulesync/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("rulesync/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadLedger implements store.Store.
func (s *Store) LoadLedger(ctx context.Context) (*ownership.State, error) {
	m := new(ledgerModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", store.LedgerKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNoLedger
		}
		return nil, fmt.Errorf("rulesync/sqlite: load ledger: %w", err)
	}
	return fromLedgerModel(m)
}

// SaveLedger implements store.Store. The row is replaced in one statement.
func (s *Store) SaveLedger(ctx context.Context, st *ownership.State) error {
	m, err := toLedgerModel(st)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("revision = EXCLUDED.revision").
		Set("highest_rule_id = EXCLUDED.highest_rule_id").
		Set("records = EXCLUDED.records").
		Set("data = EXCLUDED.data").
		Set("saved_at = EXCLUDED.saved_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rulesync/sqlite: save ledger: %w", err)
	}
	return nil
}

func toLedgerModel(st *ownership.State) (*ledgerModel, error) {
	data, err := store.Encode(st)
	if err != nil {
		return nil, fmt.Errorf("rulesync/sqlite: encode ledger: %w", err)
	}
	return &ledgerModel{
		Key:           store.LedgerKey,
		Revision:      st.Revision.String(),
		HighestRuleID: st.HighestRuleID,
		Records:       len(st.Records),
		Data:          string(data),
		SavedAt:       st.SavedAt.UTC(),
	}, nil
}

func fromLedgerModel(m *ledgerModel) (*ownership.State, error) {
	st, err := store.Decode([]byte(m.Data))
	if err != nil {
		return nil, err
	}
	if st.Revision.IsNil() && m.Revision != "" {
		rev, err := id.ParseRevisionID(m.Revision)
		if err != nil {
			return nil, fmt.Errorf("rulesync/sqlite: parse revision: %w", err)
		}
		st.Revision = rev
	}
	return st, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
