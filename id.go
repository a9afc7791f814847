package rulesync

import "github.com/xraph/rulesync/id"

// ID identifies update batches and ledger revisions.
type ID = id.ID

// Prefix identifies the kind of thing an ID names.
type Prefix = id.Prefix
