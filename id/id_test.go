package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/rulesync/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"UpdateID", id.NewUpdateID, "upd_"},
		{"RevisionID", id.NewRevisionID, "rev_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"UpdateID", id.NewUpdateID, id.ParseUpdateID},
		{"RevisionID", id.NewRevisionID, id.ParseRevisionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseUpdateID(id.NewRevisionID().String()); err == nil {
		t.Error("expected ParseUpdateID to reject a revision id")
	}
	if _, err := id.ParseRevisionID(id.NewUpdateID().String()); err == nil {
		t.Error("expected ParseRevisionID to reject an update id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestJSONField(t *testing.T) {
	type envelope struct {
		Revision id.ID `json:"revision"`
	}

	original := envelope{Revision: id.NewRevisionID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var restored envelope
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if restored.Revision.String() != original.Revision.String() {
		t.Errorf("mismatch: %q != %q", restored.Revision.String(), original.Revision.String())
	}

	var empty envelope
	if err := json.Unmarshal([]byte(`{"revision":""}`), &empty); err != nil {
		t.Fatalf("unmarshal empty failed: %v", err)
	}
	if !empty.Revision.IsNil() {
		t.Error("expected nil revision after decoding empty string")
	}
}
