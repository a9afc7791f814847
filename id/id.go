// Package id defines TypeID-based identifiers used by rulesync.
//
// Update events and persisted ledger revisions carry an ID with a prefix
// naming what they identify. IDs are K-sortable (UUIDv7-based) and render
// as "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the kind of thing an ID names.
type Prefix string

const (
	PrefixUpdate   Prefix = "upd" // Committed reconciliation batch
	PrefixRevision Prefix = "rev" // Persisted ledger revision
)

// ID wraps a TypeID.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "upd_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// UpdateID identifies one committed reconciliation batch (prefix: "upd").
type UpdateID = ID

// RevisionID identifies one persisted ledger snapshot (prefix: "rev").
type RevisionID = ID

// NewUpdateID generates a new update ID.
func NewUpdateID() ID { return New(PrefixUpdate) }

// NewRevisionID generates a new revision ID.
func NewRevisionID() ID { return New(PrefixRevision) }

// ParseUpdateID parses s and validates the "upd" prefix.
func ParseUpdateID(s string) (ID, error) { return ParseWithPrefix(s, PrefixUpdate) }

// ParseRevisionID parses s and validates the "rev" prefix.
func ParseRevisionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRevision) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
