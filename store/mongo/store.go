// Package mongo persists the ownership ledger in MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

const colLedger = "rulesync_ledger"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the ledger collection.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("rulesync/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m ledgerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": store.LedgerKey}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNoLedger
		}
		return nil, fmt.Errorf("rulesync/mongo: load ledger: %w", err)
	}
	return fromLedgerModel(&m)
}

// SaveLedger implements store.Store. The document is replaced whole.
func (s *Store) SaveLedger(ctx context.Context, st *ownership.State) error {
	m, err := toLedgerModel(st)
	if err != nil {
		return err
	}
	_, err = s.mdb.Collection(colLedger).ReplaceOne(ctx,
		bson.M{"_id": m.Key},
		m.document(),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("rulesync/mongo: save ledger: %w", err)
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colLedger: {
			{Keys: bson.D{{Key: "saved_at", Value: -1}}},
		},
	}
}
