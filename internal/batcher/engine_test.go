package batcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doubler(_ context.Context, items []int) ([]Result[int], error) {
	results := make([]Result[int], len(items))
	for i, v := range items {
		results[i] = Result[int]{Value: v * 2}
	}
	return results, nil
}

func TestEngine_SubmitSingleItem(t *testing.T) {
	e, err := New(Config{MaxBatchSize: 10, MaxQueueTime: 10 * time.Millisecond, MaxQueueSize: 100, Concurrency: 2}, AsyncProcessor[int, int](doubler))
	require.NoError(t, err)

	v, err := e.Submit(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestEngine_CoalescesConcurrentSubmits(t *testing.T) {
	var batchSizes sync.Map
	var calls atomic.Int32

	proc := AsyncProcessor[int, int](func(_ context.Context, items []int) ([]Result[int], error) {
		id := calls.Add(1)
		batchSizes.Store(id, len(items))
		results := make([]Result[int], len(items))
		for i, v := range items {
			results[i] = Result[int]{Value: v}
		}
		return results, nil
	})

	e, err := New(Config{MaxBatchSize: 5, MaxQueueTime: 50 * time.Millisecond, MaxQueueSize: 100, Concurrency: 1}, proc)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			got, err := e.Submit(context.Background(), v)
			assert.NoError(t, err)
			assert.Equal(t, v, got)
		}(i)
	}
	wg.Wait()

	// All 5 items arrive from goroutines started back to back, well
	// within the 50ms MaxQueueTime window, so a correctly coalescing
	// engine dispatches them as a single batch of 5.
	assert.Equal(t, int32(1), calls.Load())

	total := 0
	batchSizes.Range(func(_, v interface{}) bool {
		total += v.(int)
		return true
	})
	assert.Equal(t, 5, total)
}

func TestEngine_QueueFull(t *testing.T) {
	block := make(chan struct{})
	proc := AsyncProcessor[int, int](func(_ context.Context, items []int) ([]Result[int], error) {
		<-block
		results := make([]Result[int], len(items))
		return results, nil
	})

	e, err := New(Config{MaxBatchSize: 1 + 1, MaxQueueTime: time.Millisecond, MaxQueueSize: 1, Concurrency: 1}, proc)
	require.NoError(t, err)

	// Prime the collector so it is blocked waiting inside the processor.
	go e.Submit(context.Background(), 1)
	time.Sleep(20 * time.Millisecond)

	// Fill the one queue slot.
	go e.Submit(context.Background(), 2)
	time.Sleep(20 * time.Millisecond)

	_, err = e.Submit(context.Background(), 3)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestEngine_PerItemError(t *testing.T) {
	proc := AsyncProcessor[int, int](func(_ context.Context, items []int) ([]Result[int], error) {
		results := make([]Result[int], len(items))
		for i, v := range items {
			if v == 0 {
				results[i] = Result[int]{Err: errors.New("boom")}
				continue
			}
			results[i] = Result[int]{Value: v}
		}
		return results, nil
	})

	e, err := New(Config{MaxBatchSize: 2, MaxQueueTime: 10 * time.Millisecond, MaxQueueSize: 10, Concurrency: 1}, proc)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	var okErr, badErr error
	go func() {
		defer wg.Done()
		_, okErr = e.Submit(context.Background(), 7)
	}()
	go func() {
		defer wg.Done()
		_, badErr = e.Submit(context.Background(), 0)
	}()
	wg.Wait()

	assert.NoError(t, okErr)
	require.Error(t, badErr)
	var perItem *PerItemError
	assert.True(t, errors.As(badErr, &perItem))
}

func TestEngine_BatchWideError(t *testing.T) {
	boom := errors.New("processor exploded")
	proc := AsyncProcessor[int, int](func(_ context.Context, items []int) ([]Result[int], error) {
		return nil, boom
	})

	e, err := New(Config{MaxBatchSize: 4, MaxQueueTime: 10 * time.Millisecond, MaxQueueSize: 10, Concurrency: 1}, proc)
	require.NoError(t, err)

	_, err = e.Submit(context.Background(), 1)
	require.Error(t, err)
	var batchErr *BatchError
	assert.True(t, errors.As(err, &batchErr))
	assert.ErrorIs(t, err, boom)
}

func TestEngine_ResultCountMismatch(t *testing.T) {
	proc := AsyncProcessor[int, int](func(_ context.Context, items []int) ([]Result[int], error) {
		return []Result[int]{{Value: 1}}, nil
	})

	e, err := New(Config{MaxBatchSize: 4, MaxQueueTime: 10 * time.Millisecond, MaxQueueSize: 10, Concurrency: 1}, proc)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Submit(context.Background(), i)
		}(i)
	}
	wg.Wait()

	for _, e := range errs {
		assert.ErrorIs(t, e, ErrResultCountMismatch)
	}
}

func TestEngine_NilResultsResolveZeroValue(t *testing.T) {
	proc := AsyncProcessor[int, int](func(_ context.Context, items []int) ([]Result[int], error) {
		return nil, nil
	})

	e, err := New(Config{MaxBatchSize: 4, MaxQueueTime: 10 * time.Millisecond, MaxQueueSize: 10, Concurrency: 1}, proc)
	require.NoError(t, err)

	v, err := e.Submit(context.Background(), 99)
	assert.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestEngine_GracefulStopDrainsQueue(t *testing.T) {
	var processed atomic.Int32
	proc := AsyncProcessor[int, int](func(_ context.Context, items []int) ([]Result[int], error) {
		processed.Add(int32(len(items)))
		results := make([]Result[int], len(items))
		return results, nil
	})

	e, err := New(Config{MaxBatchSize: 3, MaxQueueTime: 5 * time.Millisecond, MaxQueueSize: 100, Concurrency: 2}, proc)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			e.Submit(context.Background(), v)
		}(i)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, e.Stop(ctx, false))
	assert.Equal(t, int32(9), processed.Load())
	assert.False(t, e.IsRunning())
}

func TestEngine_StopOnNeverStartedEngineReturnsImmediately(t *testing.T) {
	e, err := New(Config{MaxBatchSize: 3, MaxQueueTime: time.Millisecond, MaxQueueSize: 10, Concurrency: 1}, AsyncProcessor[int, int](doubler))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, e.Stop(ctx, false))
}

func TestEngine_SubmitAfterStopFails(t *testing.T) {
	e, err := New(Config{MaxBatchSize: 3, MaxQueueTime: time.Millisecond, MaxQueueSize: 10, Concurrency: 1}, AsyncProcessor[int, int](doubler))
	require.NoError(t, err)

	require.NoError(t, e.Stop(context.Background(), false))

	_, err = e.Submit(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngine_ForcedStopCancelsInFlight(t *testing.T) {
	block := make(chan struct{})
	proc := AsyncProcessor[int, int](func(ctx context.Context, items []int) ([]Result[int], error) {
		select {
		case <-block:
			results := make([]Result[int], len(items))
			return results, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	e, err := New(Config{MaxBatchSize: 2, MaxQueueTime: time.Millisecond, MaxQueueSize: 10, Concurrency: 2}, proc)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), 1)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Stop(context.Background(), true))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("forced stop did not resolve in-flight handle")
	}

	close(block)
}
