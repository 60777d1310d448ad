// Package inference adapts a WASM-hosted model into a batcher.Processor:
// one compiled module is instantiated once, and each dispatched batch is
// delivered to it as a single call — the whole point of coalescing model
// invocations is to amortize one inference call over many items rather
// than pay its fixed overhead per item.
package inference

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/FairForge/batchd/internal/batcher"
)

// Request is one inference call: Input is packed alongside the rest of
// its batch before a single invocation.
type Request struct {
	Input []byte
}

// Response is the raw bytes the entrypoint wrote back for one item.
type Response struct {
	Output []byte
}

// Model wraps a single instantiated WASM module. It is not safe for
// concurrent calls to Process from multiple batches at once — a batcher
// Engine using this adapter should be configured with Concurrency: 1.
type Model struct {
	runtime    wazero.Runtime
	module     api.Module
	entrypoint string

	alloc  api.Function
	free   api.Function
	invoke api.Function
}

// Load compiles and instantiates the WASM module at path. entrypoint
// names the exported batch-transform function: it takes a pointer and
// length describing one encoded request frame (see encodeBatch) and
// returns a packed (ptr<<32 | len) pair describing the encoded response
// frame (see decodeBatch), covering every item in the call in one round
// trip.
func Load(ctx context.Context, path, entrypoint string) (*Model, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read module: %w", err)
	}

	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("inference: instantiate wasi: %w", err)
	}

	module, err := runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("inference: instantiate module: %w", err)
	}

	invoke := module.ExportedFunction(entrypoint)
	if invoke == nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("inference: module has no exported function %q", entrypoint)
	}

	return &Model{
		runtime:    runtime,
		module:     module,
		entrypoint: entrypoint,
		alloc:      module.ExportedFunction("alloc"),
		free:       module.ExportedFunction("free"),
		invoke:     invoke,
	}, nil
}

// Close releases the runtime and its module.
func (m *Model) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// Process implements the batcher.Processor contract: the whole batch is
// encoded into one frame and delivered to the module's entrypoint in a
// single call, then the response frame is split back out one Result per
// item, in order.
func (m *Model) Process(ctx context.Context, items []Request) ([]batcher.Result[Response], error) {
	inputs := make([][]byte, len(items))
	for i, item := range items {
		inputs[i] = item.Input
	}

	outputs, err := m.inferBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(outputs) != len(items) {
		return nil, fmt.Errorf("inference: module returned %d outputs for %d inputs", len(outputs), len(items))
	}

	results := make([]batcher.Result[Response], len(items))
	for i, out := range outputs {
		results[i] = batcher.Result[Response]{Value: Response{Output: out}}
	}
	return results, nil
}

// inferBatch performs the single alloc/write/invoke/read/free round trip
// covering every item in inputs.
func (m *Model) inferBatch(ctx context.Context, inputs [][]byte) ([][]byte, error) {
	if m.alloc == nil || m.free == nil {
		return nil, fmt.Errorf("inference: module does not export alloc/free")
	}

	frame := encodeBatch(inputs)
	size := uint64(len(frame))

	allocResults, err := m.alloc.Call(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("inference: alloc: %w", err)
	}
	ptr := allocResults[0]
	defer m.free.Call(ctx, ptr, size)

	mem := m.module.Memory()
	if !mem.Write(uint32(ptr), frame) {
		return nil, fmt.Errorf("inference: write batch out of memory bounds")
	}

	out, err := m.invoke.Call(ctx, ptr, size)
	if err != nil {
		return nil, fmt.Errorf("inference: invoke %s: %w", m.entrypoint, err)
	}

	outPtr := uint32(out[0] >> 32)
	outLen := uint32(out[0])
	data, ok := mem.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("inference: read batch output out of memory bounds")
	}

	return decodeBatch(data)
}

// encodeBatch packs items into a single frame: a uint32 item count,
// followed by each item as a uint32 length prefix and its bytes. This is
// the wire format the WASM entrypoint's input pointer/length describes.
func encodeBatch(items [][]byte) []byte {
	size := 4
	for _, item := range items {
		size += 4 + len(item)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf, uint32(len(items)))
	offset := 4
	for _, item := range items {
		binary.LittleEndian.PutUint32(buf[offset:], uint32(len(item)))
		offset += 4
		copy(buf[offset:], item)
		offset += len(item)
	}
	return buf
}

// decodeBatch unpacks a frame built the same way encodeBatch builds its
// input frame, as the WASM entrypoint is expected to produce its output.
func decodeBatch(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("inference: output frame too short for item count")
	}
	count := binary.LittleEndian.Uint32(data)
	items := make([][]byte, 0, count)

	offset := 4
	for i := uint32(0); i < count; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("inference: output frame truncated reading item %d length", i)
		}
		length := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if offset+int(length) > len(data) {
			return nil, fmt.Errorf("inference: output frame truncated reading item %d body", i)
		}
		items = append(items, data[offset:offset+int(length)])
		offset += int(length)
	}

	return items, nil
}
