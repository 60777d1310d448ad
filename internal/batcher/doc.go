// Package batcher implements a generic request-coalescing batcher: many
// concurrent producers Submit individual items, the engine groups them
// into bounded batches by size and queue-time deadline, hands each batch
// to a user-supplied Processor, and returns every producer its own result
// or error once its batch completes.
//
// The engine preserves per-item result ordering within a batch, enforces
// admission backpressure (QueueFull is returned synchronously, producers
// never block waiting for queue space), and bounds the number of batches
// processed concurrently. It does not persist queued items, coordinate
// across processes, retry failed batches, deduplicate items, or schedule
// producers by priority.
package batcher
