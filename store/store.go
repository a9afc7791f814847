// Package store defines persistence for the ownership ledger. Backends
// save whole snapshots; a snapshot is never written in parts.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/rulesync/ownership"
)

// ErrNoLedger is returned by LoadLedger when nothing has been saved yet.
var ErrNoLedger = errors.New("store: no ledger saved")

// LedgerKey identifies the single ledger snapshot in keyed backends.
const LedgerKey = "ledger"

// Store persists ledger snapshots.
type Store interface {
	// LoadLedger returns the last saved snapshot or ErrNoLedger.
	LoadLedger(ctx context.Context) (*ownership.State, error)
	// SaveLedger replaces the saved snapshot atomically.
	SaveLedger(ctx context.Context, st *ownership.State) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Encode serializes a snapshot the way keyed backends store it.
func Encode(st *ownership.State) ([]byte, error) {
	return json.Marshal(st)
}

// Decode parses a snapshot written by Encode.
func Decode(data []byte) (*ownership.State, error) {
	var st ownership.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("store: decode ledger: %w", err)
	}
	return &st, nil
}
