package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/FairForge/batchd/internal/batcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubmitter struct {
	result json.RawMessage
	err    error
}

func (f fakeSubmitter) SubmitJSON(ctx context.Context, body []byte) (json.RawMessage, error) {
	return f.result, f.err
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(":0", zap.NewNop(), fakeSubmitter{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleSubmit_ReturnsSubmitterResult(t *testing.T) {
	s := NewServer(":0", zap.NewNop(), fakeSubmitter{result: json.RawMessage(`{"ok":true}`)}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/items/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestHandleSubmit_MapsQueueFullTo503(t *testing.T) {
	s := NewServer(":0", zap.NewNop(), fakeSubmitter{err: batcher.ErrQueueFull}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/items/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEngineSubmitter_RoundTripsJSON(t *testing.T) {
	eng, err := batcher.New[int, int](batcher.Config{
		MaxBatchSize: 4,
		MaxQueueTime: 0,
		MaxQueueSize: 10,
		Concurrency:  1,
	}, batcher.AsyncProcessor[int, int](func(ctx context.Context, items []int) ([]batcher.Result[int], error) {
		results := make([]batcher.Result[int], len(items))
		for i, v := range items {
			results[i] = batcher.Result[int]{Value: v * 2}
		}
		return results, nil
	}))
	require.NoError(t, err)

	sub := EngineSubmitter[int, int]{Engine: eng}
	out, err := sub.SubmitJSON(context.Background(), []byte("21"))
	require.NoError(t, err)
	assert.JSONEq(t, "42", string(out))
}
