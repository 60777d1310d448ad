package batcher

import (
	"context"
	"sync"
)

// handle is a single-shot CompletionHandle: created on admission, resolved
// exactly once by the worker (or by a forced Stop), and observed by
// exactly one awaiting producer. Resolving it more than once is a no-op —
// whichever caller wins the race is final, which is what lets a forced
// cancellation race safely against a worker that finishes anyway.
type handle[S any] struct {
	done   chan struct{}
	once   sync.Once
	result S
	err    error
}

func newHandle[S any]() *handle[S] {
	return &handle[S]{done: make(chan struct{})}
}

func (h *handle[S]) resolve(result S, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// wait blocks until the handle resolves or ctx is cancelled. Per spec.md
// §5, abandoning this wait does not remove the item from its queued
// batch — the batch still runs, the result is simply discarded.
func (h *handle[S]) wait(ctx context.Context) (S, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		var zero S
		return zero, ctx.Err()
	}
}
