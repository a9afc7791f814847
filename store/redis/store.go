// Package redis persists the ownership ledger in Redis. The snapshot is a
// single JSON value; older revisions can be kept in a capped list.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "rulesync:"

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithHistory keeps the last n saved snapshots in a list next to the
// current one. Zero disables history.
func WithHistory(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.history = n
		}
	}
}

// Store implements store.Store on a go-redis client.
type Store struct {
	client  goredis.UniversalClient
	prefix  string
	history int
}

// New wraps client. The store owns the client and closes it on Close.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

func (s *Store) ledgerKey() string  { return s.prefix + store.LedgerKey }
func (s *Store) historyKey() string { return s.prefix + store.LedgerKey + ":history" }

// Migrate is a no-op; redis needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// LoadLedger implements store.Store.
func (s *Store) LoadLedger(ctx context.Context) (*ownership.State, error) {
	data, err := s.client.Get(ctx, s.ledgerKey()).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNoLedger
		}
		return nil, fmt.Errorf("rulesync/redis: load ledger: %w", err)
	}
	return store.Decode(data)
}

// SaveLedger implements store.Store. The value and history list are
// written in one MULTI/EXEC.
func (s *Store) SaveLedger(ctx context.Context, st *ownership.State) error {
	data, err := store.Encode(st)
	if err != nil {
		return fmt.Errorf("rulesync/redis: encode ledger: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.ledgerKey(), data, 0)
		if s.history > 0 {
			pipe.LPush(ctx, s.historyKey(), data)
			pipe.LTrim(ctx, s.historyKey(), 0, int64(s.history-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rulesync/redis: save ledger: %w", err)
	}
	return nil
}

// History returns up to n previously saved snapshots, newest first.
func (s *Store) History(ctx context.Context, n int) ([]*ownership.State, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.historyKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("rulesync/redis: load history: %w", err)
	}
	out := make([]*ownership.State, 0, len(raw))
	for _, r := range raw {
		st, err := store.Decode([]byte(r))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
