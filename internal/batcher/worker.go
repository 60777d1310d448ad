package batcher

import (
	"context"
	"time"
)

// runWorker processes one dispatched batch. It always releases its
// concurrency slot and deregisters itself on the way out, regardless of
// how the processor call concluded.
func (e *Engine[T, S]) runWorker(ctx context.Context, cancel context.CancelFunc, id uint64, batch []entry[T, S], release func()) {
	defer e.wg.Done()
	defer cancel()
	defer e.inflight.remove(id)
	defer release()

	items := make([]T, len(batch))
	for i, en := range batch {
		items[i] = en.item
	}

	start := time.Now()
	results, err := e.proc.run(ctx, items)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		resolveAll[T, S](batch, &BatchError{Err: err})
	case results == nil:
		var zero S
		for _, en := range batch {
			en.handle.resolve(zero, nil)
		}
	case len(results) != len(batch):
		err = ErrResultCountMismatch
		resolveAll[T, S](batch, err)
	default:
		for i, en := range batch {
			r := results[i]
			if r.Err != nil {
				en.handle.resolve(r.Value, &PerItemError{Err: r.Err})
				continue
			}
			en.handle.resolve(r.Value, nil)
		}
	}

	if e.cfg.LogHook != nil {
		e.cfg.LogHook(BatchEvent{TaskID: id, Size: len(batch), Elapsed: elapsed, Err: err})
	}
}

// resolveAll resolves every handle in batch with the zero value of S and
// the given error.
func resolveAll[T, S any](batch []entry[T, S], err error) {
	var zero S
	for _, en := range batch {
		en.handle.resolve(zero, err)
	}
}
