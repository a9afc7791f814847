// Package postgres persists the ownership ledger in PostgreSQL via Grove
// ORM. The snapshot is kept as a single JSONB row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the ledger table using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("rulesync/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("rulesync/postgres: migration failed: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("key = $1", store.LedgerKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNoLedger
		}
		return nil, fmt.Errorf("rulesync/postgres: load ledger: %w", err)
	}
	return fromLedgerModel(m)
}

// SaveLedger implements store.Store.
func (s *Store) SaveLedger(ctx context.Context, st *ownership.State) error {
	m, err := toLedgerModel(st)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("revision = EXCLUDED.revision").
		Set("highest_rule_id = EXCLUDED.highest_rule_id").
		Set("records = EXCLUDED.records").
		Set("data = EXCLUDED.data").
		Set("saved_at = EXCLUDED.saved_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rulesync/postgres: save ledger: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
