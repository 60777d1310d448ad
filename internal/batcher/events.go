package batcher

import "time"

// BatchEvent describes one dispatched batch after its worker finishes.
// Err is the batch-wide error, if any; per-item errors inside an
// otherwise-successful batch are not reported here, only to their own
// handle.
type BatchEvent struct {
	TaskID  uint64
	Size    int
	Elapsed time.Duration
	Err     error
}

// LogHook receives one BatchEvent per dispatched batch.
type LogHook func(BatchEvent)
