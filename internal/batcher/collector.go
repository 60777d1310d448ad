package batcher

import "time"

// slotWait bounds how long the collector waits for a free concurrency
// slot before re-checking whether it should stop. It is not a config
// knob: spec.md treats it as an internal liveness poll, not a tunable.
const slotWait = 1 * time.Second

// runCollector is the engine's single background goroutine: it owns the
// queue's consumer side, assembles batches, and dispatches them. Exactly
// one instance runs per Engine, started lazily on the first Submit.
func (e *Engine[T, S]) runCollector() {
	defer close(e.collectorDone)

	for {
		if e.shouldStop() {
			return
		}

		release, ok := e.acquireSlot()
		if !ok {
			// forced stop arrived while waiting for a slot
			return
		}
		if release == nil {
			// slotWait elapsed with nothing free; re-check shouldStop
			continue
		}

		seed, ok := e.q.takeTimeout(e.forceCh, slotWait)
		if !ok {
			release()
			continue
		}

		batch := e.extendBatch(seed)
		e.dispatch(batch, release)
	}
}

// shouldStop reports whether the collector should exit before starting
// another batch. A forced stop always wins immediately; a graceful stop
// only once the queue has fully drained.
func (e *Engine[T, S]) shouldStop() bool {
	select {
	case <-e.forceCh:
		return true
	default:
	}

	select {
	case <-e.stopCh:
		return e.q.len() == 0
	default:
		return false
	}
}

// acquireSlot reserves one concurrency slot. It returns ok=false only on
// a forced stop; release==nil with ok=true means the wait timed out and
// the caller should loop back to shouldStop. When concurrency is
// unbounded (e.sem is nil) it returns a no-op release immediately.
func (e *Engine[T, S]) acquireSlot() (release func(), ok bool) {
	if e.sem == nil {
		return func() {}, true
	}

	select {
	case e.sem <- struct{}{}:
		released := false
		return func() {
			if !released {
				released = true
				<-e.sem
			}
		}, true
	case <-time.After(slotWait):
		return nil, true
	case <-e.forceCh:
		return nil, false
	}
}

// extendBatch grows a seeded batch up to cfg.MaxBatchSize, waiting up to
// cfg.MaxQueueTime for each additional item. Per spec.md's design note on
// Open Question 1, each wait uses the full MaxQueueTime window rather
// than a shrinking remainder — the deadline bounds each item's wait, not
// the batch's total assembly time.
func (e *Engine[T, S]) extendBatch(seed entry[T, S]) []entry[T, S] {
	batch := make([]entry[T, S], 0, e.batchCap())
	batch = append(batch, seed)

	for e.cfg.MaxBatchSize == Unbounded || len(batch) < e.cfg.MaxBatchSize {
		var (
			e2 entry[T, S]
			ok bool
		)
		if e.cfg.MaxQueueTime > 0 {
			e2, ok = e.q.takeTimeout(e.forceCh, e.cfg.MaxQueueTime)
		} else {
			e2, ok = e.q.tryTake()
		}
		if !ok {
			break
		}
		batch = append(batch, e2)
	}

	return batch
}

func (e *Engine[T, S]) batchCap() int {
	if e.cfg.MaxBatchSize == Unbounded {
		return 16
	}
	return e.cfg.MaxBatchSize
}
