package abi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/compruntime/host/internal/component/comperr"
	"github.com/compruntime/host/internal/component/engine"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// InvokeResult is the decoded guest response to a call_invoke, mirroring
// the richer Ok/Err shape spec §4.5 step 7 requires (operation-level
// output on success, a structured runtime failure on error).
type InvokeResult struct {
	Ok  json.RawMessage  `json:"ok,omitempty"`
	Err *InvokeResultErr `json:"err,omitempty"`
}

// InvokeResultErr is the guest-reported error payload for a failed
// operation call.
type InvokeResultErr struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
	BackoffMS *int            `json:"backoff_ms,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Binding is the tagged-variant interface over the three guest ABI
// versions. Every version shares the same invocation convention; only
// 0.6 exposes CallDescribe.
type Binding interface {
	Version() Version
	// Instantiate creates a fresh guest instance against a store scoped
	// to one invocation. Callers are responsible for closing it.
	Instantiate(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, moduleName string) (api.Module, error)
	// CallInvoke calls the guest's invoke export with the serialized
	// exec context, operation name, and input JSON, returning the
	// decoded InvokeResult.
	CallInvoke(ctx context.Context, mod api.Module, execCtxJSON []byte, operation string, inputJSON []byte) (*InvokeResult, error)
	// CallDescribe calls the guest's describe export. Only meaningful
	// for V06; V04/V05 always return ok=false so callers fall back to
	// the manifest's own config_schema per the §9 descriptor fallback
	// rule.
	CallDescribe(ctx context.Context, mod api.Module) (payload []byte, ok bool, err error)
}

type coreBinding struct {
	version Version
}

// New builds the Binding for a parsed ABI version. All three versions
// share one calling-convention implementation; only describe support
// varies.
func New(version Version) Binding {
	return &coreBinding{version: version}
}

func (b *coreBinding) Version() Version { return b.version }

func (b *coreBinding) Instantiate(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, moduleName string) (api.Module, error) {
	cfg := wazero.NewModuleConfig().
		WithName(moduleName).
		WithStartFunctions("_initialize")
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, comperr.Engine(err, "instantiating guest module for abi %s", b.version)
	}
	if mod.ExportedFunction(ExportInvoke) == nil {
		_ = mod.Close(ctx)
		return nil, comperr.Manifest("guest module does not export %s required by abi %s", ExportInvoke, b.version)
	}
	if b.version.RequiresDescribe() && mod.ExportedFunction(ExportDescribe) == nil {
		_ = mod.Close(ctx)
		return nil, comperr.Manifest("guest module does not export %s required by abi %s", ExportDescribe, b.version)
	}
	return mod, nil
}

// invokeRequest is the canonical-ABI envelope written into guest memory
// for one call_invoke: the exec context, operation name, and input are
// concatenated as a single JSON object so the guest only needs to parse
// one buffer.
type invokeRequest struct {
	ExecCtx   json.RawMessage `json:"exec_ctx"`
	Operation string          `json:"operation"`
	Input     json.RawMessage `json:"input"`
}

func (b *coreBinding) CallInvoke(ctx context.Context, mod api.Module, execCtxJSON []byte, operation string, inputJSON []byte) (*InvokeResult, error) {
	req := invokeRequest{ExecCtx: execCtxJSON, Operation: operation, Input: inputJSON}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, comperr.JSON(err)
	}

	ptr, length, err := engine.WriteBytes(ctx, mod, reqBytes)
	if err != nil {
		return nil, comperr.Engine(err, "writing invoke request")
	}

	fn := mod.ExportedFunction(ExportInvoke)
	results, err := fn.Call(ctx, uint64(ptr), uint64(length))
	if err != nil {
		return nil, err // classified by the caller (timeout vs trap vs memory)
	}
	if len(results) != 2 {
		return nil, comperr.Manifest("invoke export returned %d results, expected (ptr, len)", len(results))
	}

	outPtr, outLen := uint32(results[0]), uint32(results[1])
	outBytes, err := engine.ReadBytes(mod, outPtr, outLen)
	if err != nil {
		return nil, comperr.Engine(err, "reading invoke response")
	}

	var result InvokeResult
	if err := json.Unmarshal(outBytes, &result); err != nil {
		return nil, comperr.JSON(fmt.Errorf("decoding invoke response: %w", err))
	}
	return &result, nil
}

func (b *coreBinding) CallDescribe(ctx context.Context, mod api.Module) ([]byte, bool, error) {
	if !b.version.RequiresDescribe() {
		return nil, false, nil
	}
	fn := mod.ExportedFunction(ExportDescribe)
	if fn == nil {
		return nil, false, comperr.Manifest("guest declares abi %s but does not export %s", b.version, ExportDescribe)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return nil, false, comperr.Engine(err, "calling %s", ExportDescribe)
	}
	if len(results) != 2 {
		return nil, false, comperr.Manifest("%s returned %d results, expected (ptr, len)", ExportDescribe, len(results))
	}
	payload, err := engine.ReadBytes(mod, uint32(results[0]), uint32(results[1]))
	if err != nil {
		return nil, false, comperr.Engine(err, "reading describe payload")
	}
	return payload, true, nil
}
