package rulesync

import (
	"context"
	"time"
)

// requestSave persists the ledger, debounced on the background worker
// when it is running. Batches that hand out rule ids save directly
// through commit instead.
func (e *Engine) requestSave(ctx context.Context) {
	if e.running.Load() {
		select {
		case e.saveCh <- struct{}{}:
		default:
		}
		return
	}
	e.save(ctx)
}

// Flush persists the ledger immediately.
func (e *Engine) Flush(ctx context.Context) error {
	return e.saveSnapshot(ctx)
}

// saveWorker coalesces save requests that arrive within the debounce
// window into one snapshot.
func (e *Engine) saveWorker(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(e.saveDebounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-e.stopChan:
			timer.Stop()
			select {
			case <-e.saveCh:
				pending = true
			default:
			}
			// Final flush
			if pending {
				e.save(ctx)
			}
			return

		case <-e.saveCh:
			if !pending {
				pending = true
				timer.Reset(e.saveDebounce)
			}

		case <-timer.C:
			pending = false
			e.save(ctx)
		}
	}
}

func (e *Engine) save(ctx context.Context) {
	if err := e.saveSnapshot(ctx); err != nil {
		e.logger.Error("failed to save ledger",
			"error", err,
		)
	}
}

func (e *Engine) saveSnapshot(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	start := time.Now()
	st := e.ledger.Snapshot()

	if err := e.store.SaveLedger(ctx, st); err != nil {
		return err
	}

	elapsed := time.Since(start)
	e.plugins.EmitLedgerSaved(ctx, len(st.Records), elapsed)

	e.logger.Debug("saved ledger",
		"revision", st.Revision.String(),
		"records", len(st.Records),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}
