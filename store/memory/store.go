// Package memory is an in-process store. Snapshots are kept encoded so
// callers never share memory with the saved copy.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/rulesync/ownership"
	"github.com/xraph/rulesync/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	data    []byte
	saves   int
	saveErr error
}

func New() *Store {
	return &Store{}
}

func (s *Store) LoadLedger(_ context.Context) (*ownership.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return nil, store.ErrNoLedger
	}
	return store.Decode(s.data)
}

func (s *Store) SaveLedger(_ context.Context, st *ownership.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := store.Encode(st)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

// Saves returns how many snapshots were written.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// FailSave makes subsequent saves return err. A nil err clears it.
func (s *Store) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Lifecycle

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
