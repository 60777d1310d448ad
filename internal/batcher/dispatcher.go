package batcher

import (
	"context"
	"sync"
)

// inflightTask is the dispatcher's record of a running worker: enough to
// cancel it and resolve its batch if a forced Stop arrives before it
// finishes naturally.
type inflightTask[T, S any] struct {
	cancel context.CancelFunc
	batch  []entry[T, S]
}

// inflightRegistry is the in-flight worker set from spec.md §4.4. It is
// mutated only by the collector (insert, via dispatch) and by each
// worker's terminal step (remove). A forced Stop reads it through drain
// but does not remove entries.
type inflightRegistry[T, S any] struct {
	mu    sync.Mutex
	tasks map[uint64]*inflightTask[T, S]
	seq   uint64
}

func newInflightRegistry[T, S any]() *inflightRegistry[T, S] {
	return &inflightRegistry[T, S]{tasks: make(map[uint64]*inflightTask[T, S])}
}

func (r *inflightRegistry[T, S]) nextID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

func (r *inflightRegistry[T, S]) register(id uint64, cancel context.CancelFunc, batch []entry[T, S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id] = &inflightTask[T, S]{cancel: cancel, batch: batch}
}

func (r *inflightRegistry[T, S]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

func (r *inflightRegistry[T, S]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// drain returns every currently registered task, for a forced Stop to
// cancel and resolve. It does not remove them from the registry — each
// worker still removes itself when it eventually unwinds.
func (r *inflightRegistry[T, S]) drain() []*inflightTask[T, S] {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := make([]*inflightTask[T, S], 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// dispatch allocates a task ID, registers the worker in the in-flight
// set, and launches it. release is called by the worker when it
// completes, returning the concurrency slot the collector acquired for
// this batch — never before (spec.md §4.3 step 4).
func (e *Engine[T, S]) dispatch(batch []entry[T, S], release func()) {
	id := e.inflight.nextID()
	ctx, cancel := context.WithCancel(context.Background())
	e.inflight.register(id, cancel, batch)

	e.wg.Add(1)
	go e.runWorker(ctx, cancel, id, batch, release)
}
