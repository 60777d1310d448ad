package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FairForge/batchd/internal/batcher"
)

// EngineSubmitter adapts a generic batcher.Engine[T, S] to Submitter by
// marshaling through JSON. It is the only place in the service that
// bridges the router's non-generic handlers to a concrete T and S.
type EngineSubmitter[T, S any] struct {
	Engine *batcher.Engine[T, S]
}

// SubmitJSON unmarshals body into T, submits it, and marshals the
// resulting S back out.
func (a EngineSubmitter[T, S]) SubmitJSON(ctx context.Context, body []byte) (json.RawMessage, error) {
	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("api: decode request body: %w", err)
	}

	result, err := a.Engine.Submit(ctx, item)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("api: encode result: %w", err)
	}
	return out, nil
}
