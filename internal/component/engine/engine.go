// Package engine wraps wazero's core-module runtime with the
// configuration and guest-memory calling convention the loader and
// invoker build on: one Runtime per loaded component (so the manifest's
// memory_mb limit can be baked into the runtime at creation time), and a
// small canonical-ABI-style helper for moving byte buffers across the
// host/guest boundary.
//
// Grounded on pkg/runtime/sandbox/wasi_sandbox.go's
// compile-once/instantiate-per-call shape, generalized from a single
// deny-by-default WASI sandbox into the per-component engine the loader
// needs.
package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Engine owns one wazero Runtime sized for a single component's declared
// memory limit, plus the registered host-import module.
type Engine struct {
	Runtime    wazero.Runtime
	MemoryCapBytes int64
}

// New creates a sandbox engine configured for the component model
// approximation described in the package doc: no ambient filesystem or
// network authority, deterministic-by-default WASI, and a fixed memory
// ceiling derived from the manifest's limits.memory_mb (wazero ties
// memory capacity to the Runtime, not to a per-call store, so the cap is
// baked in once here rather than re-applied per invocation).
func New(ctx context.Context, memoryMB int) (*Engine, error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	capBytes := int64(memoryMB) * (1 << 20)
	if memoryMB > 0 {
		pages := uint32(capBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		cfg = cfg.WithMemoryLimitPages(pages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("engine: instantiating wasi snapshot preview1: %w", err)
	}

	return &Engine{Runtime: rt, MemoryCapBytes: capBytes}, nil
}

// Close releases the runtime and every module compiled/instantiated
// against it.
func (e *Engine) Close(ctx context.Context) error {
	return e.Runtime.Close(ctx)
}

// CompileModule compiles guest bytes once; the result is reused across
// every per-call instantiation (the "instance_pre" analog from §4.3).
func (e *Engine) CompileModule(ctx context.Context, wasmBytes []byte) (wazero.CompiledModule, error) {
	compiled, err := e.Runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("engine: compiling component module: %w", err)
	}
	return compiled, nil
}

// exportAlloc is the guest allocator export; it has the same value as
// abi.ExportAlloc, repeated here because package abi imports engine.
const exportAlloc = "cabi_realloc"

// WriteBytes allocates guest memory via the guest's cabi_realloc export
// and copies data into it, returning the pointer and length.
func WriteBytes(ctx context.Context, mod api.Module, data []byte) (ptr, length uint32, err error) {
	alloc := mod.ExportedFunction(exportAlloc)
	if alloc == nil {
		return 0, 0, fmt.Errorf("engine: guest module does not export %s", exportAlloc)
	}
	length = uint32(len(data))
	results, err := alloc.Call(ctx, 0, 0, 1, uint64(length))
	if err != nil {
		return 0, 0, fmt.Errorf("engine: calling %s: %w", exportAlloc, err)
	}
	ptr = uint32(results[0])
	if length > 0 {
		if !mod.Memory().Write(ptr, data) {
			return 0, 0, fmt.Errorf("engine: writing %d bytes at guest offset %d out of range", length, ptr)
		}
	}
	return ptr, length, nil
}

// ReadBytes copies length bytes out of guest memory at ptr.
func ReadBytes(mod api.Module, ptr, length uint32) ([]byte, error) {
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("engine: reading %d bytes at guest offset %d out of range", length, ptr)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// MemoryBytes returns the guest's current linear memory size in bytes.
func MemoryBytes(mod api.Module) int64 {
	return int64(mod.Memory().Size())
}

// PackPtrLen packs a (ptr, len) pair into the single uint64 wazero host
// functions return when bridging the canonical-ABI-style calling
// convention back across the host/guest boundary.
func PackPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackPtrLen is the inverse of PackPtrLen.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
