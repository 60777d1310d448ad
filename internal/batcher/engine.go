package batcher

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	stateCreated int32 = iota
	stateRunning
	stateDraining
	stateStopped
)

// Engine is a generic request-coalescing batcher: producers call Submit
// with an item of type T and receive a result of type S once the item's
// batch has been processed. One Engine owns exactly one background
// collector goroutine, started lazily on the first Submit.
type Engine[T, S any] struct {
	cfg  Config
	proc Processor[T, S]

	q   *queue[T, S]
	sem chan struct{} // nil iff cfg.Concurrency is Unbounded

	inflight *inflightRegistry[T, S]

	state atomic.Int32

	startOnce sync.Once
	wg        sync.WaitGroup

	collectorDone chan struct{}

	stopCh          chan struct{}
	forceCh         chan struct{}
	signalStopOnce  sync.Once
	signalForceOnce sync.Once
}

// New constructs an Engine from cfg and proc. The engine does nothing
// until the first Submit call starts its collector.
func New[T, S any](cfg Config, proc Processor[T, S]) (*Engine[T, S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, ErrNilProcessor
	}

	e := &Engine[T, S]{
		cfg:           cfg,
		proc:          proc,
		q:             newQueue[T, S](cfg.MaxQueueSize),
		inflight:      newInflightRegistry[T, S](),
		collectorDone: make(chan struct{}),
		stopCh:        make(chan struct{}),
		forceCh:       make(chan struct{}),
	}
	if cfg.Concurrency != Unbounded {
		e.sem = make(chan struct{}, cfg.Concurrency)
	}
	return e, nil
}

// Submit admits item, starting the engine's collector on first use, and
// blocks until the item's batch has been processed or ctx is cancelled.
// Cancelling ctx only abandons the wait for this caller — the item
// remains queued and its batch still runs.
func (e *Engine[T, S]) Submit(ctx context.Context, item T) (S, error) {
	var zero S

	if s := e.state.Load(); s == stateDraining || s == stateStopped {
		return zero, ErrEngineStopped
	}

	e.startOnce.Do(func() {
		e.state.CompareAndSwap(stateCreated, stateRunning)
		go e.runCollector()
	})

	h := newHandle[S]()
	if !e.q.tryPut(entry[T, S]{item: item, handle: h}) {
		return zero, ErrQueueFull
	}

	return h.wait(ctx)
}

// IsRunning reports whether the engine is accepting new items (Running)
// or finishing in-flight work after a graceful Stop (Draining). It is
// false before the first Submit and after Stop completes.
func (e *Engine[T, S]) IsRunning() bool {
	s := e.state.Load()
	return s == stateRunning || s == stateDraining
}

// Stop shuts the engine down. A graceful stop (force=false) closes
// admission, lets the queue drain, and waits for every in-flight batch
// to finish or for ctx to expire, whichever comes first. A forced stop
// (force=true) cancels every in-flight worker's context immediately,
// resolves their handles with ErrCancelled, and returns without waiting.
func (e *Engine[T, S]) Stop(ctx context.Context, force bool) error {
	if force {
		e.signalForceOnce.Do(func() { close(e.forceCh) })
		e.signalStopOnce.Do(func() { close(e.stopCh) })
		e.state.Store(stateStopped)
		e.cancelAllInflight()
		return nil
	}

	if e.state.CompareAndSwap(stateCreated, stateStopped) {
		// Engine never started: nothing to drain.
		return nil
	}

	e.state.CompareAndSwap(stateRunning, stateDraining)
	e.signalStopOnce.Do(func() { close(e.stopCh) })

	select {
	case <-e.collectorDone:
		e.wg.Wait()
		e.state.Store(stateStopped)
		return nil
	case <-ctx.Done():
		return ErrStopTimeout
	}
}

// cancelAllInflight cancels every registered worker's context and
// resolves its batch's handles with ErrCancelled. It never waits for the
// workers to actually unwind; each worker's own deferred cleanup still
// runs concurrently and is a no-op once its handles are already
// resolved, thanks to sync.Once.
func (e *Engine[T, S]) cancelAllInflight() {
	for _, t := range e.inflight.drain() {
		t.cancel()
		resolveAll[T, S](t.batch, ErrCancelled)
	}
}
