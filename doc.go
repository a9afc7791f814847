// Package rulesync keeps a browser-style declarative rule substrate in step
// with the filter lists of many subscriptions.
//
// rulesync is a library, not a service. It provides:
//
//   - An ownership ledger mapping each normalized filter text to the
//     subscriptions (or the user) that own it and the dynamic rule ids
//     currently live for it
//   - Full and diff reconciliation of a subscription's filters, applied to
//     the substrate as one budget-checked batch
//   - Coordination with bundled static rulesets, preferring their rules
//     over compiled dynamic ones
//   - Debounced persistence of the ledger to SQLite, PostgreSQL, MongoDB,
//     Redis or memory
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/rulesync"
//	    "github.com/xraph/rulesync/store/sqlite"
//	    "github.com/xraph/rulesync/substrate/memory"
//	)
//
//	e := rulesync.New(store, memory.New(memory.WithQuota(5000)))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
//	sub := &rulesync.Subscription{ID: "easylist", Kind: subscription.KindFull, Enabled: true}
//	res, err := e.FullUpdate(ctx, sub, texts)
//
// # Budget
//
// Every batch is checked against the substrate quota before anything is
// sent. A batch that does not fit is rejected whole with ErrTooManyFilters
// (or ErrDiffTooManyFilters for diff updates); the ledger and the
// subscription's filter list stay as they were.
//
// # Concurrency
//
// Mutating operations are serialized. A diff update arriving while another
// one for the same subscription is still in flight is dropped and reported
// through UpdateResult.Dropped.
package rulesync
