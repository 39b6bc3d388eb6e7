// Package invoker implements the per-call invocation sequence: binding
// lookup, fresh per-call host state, a bounded-time guest call, and
// trap classification into Timeout/MemoryLimit/Runtime errors.
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/compruntime/host/internal/component/binder"
	"github.com/compruntime/host/internal/component/comperr"
	"github.com/compruntime/host/internal/component/engine"
	"github.com/compruntime/host/internal/component/hostimport"
	"github.com/compruntime/host/internal/component/loader"
	"github.com/compruntime/host/internal/component/statestore"
	"github.com/compruntime/host/internal/observability"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/time/rate"
)

// Deps bundles the shared, reusable collaborators an Invoker needs that
// are not handle-specific (a host can share one state store and HTTP
// client across every handle it loads).
type Deps struct {
	StateStore    statestore.Store
	HTTPClient    *http.Client
	Logger        *slog.Logger
	Observability *observability.Provider
}

// Invoker calls operations against loaded, bound component handles.
type Invoker struct {
	deps Deps
}

// New creates an Invoker over the given shared dependencies.
func New(deps Deps) *Invoker {
	if deps.StateStore == nil {
		deps.StateStore = statestore.NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Invoker{deps: deps}
}

// execCtx is the guest-visible call context serialized alongside each
// invoke request, mirroring the fields host_imports.rs's
// make_exec_ctx/make_component_tenant_ctx construct for the guest.
type execCtx struct {
	Tenant         string `json:"tenant"`
	Team           string `json:"team,omitempty"`
	User           string `json:"user,omitempty"`
	TraceID        string `json:"trace_id"`
	CorrelationID  string `json:"correlation_id"`
	DeadlineUnixMS *int64 `json:"deadline_unix_ms,omitempty"`
	Attempt        int    `json:"attempt"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Invoke runs operation against handle on behalf of tenant, returning
// the operation's output JSON or a classified CompError.
func (inv *Invoker) Invoke(ctx context.Context, handle *loader.ComponentHandle, operation string, inputJSON json.RawMessage, tenant binder.TenantCtx) (json.RawMessage, error) {
	if inv.deps.Observability != nil {
		var done func(error)
		ctx, done = inv.deps.Observability.TrackInvocation(ctx, handle.Info.ID, operation, tenant.Key())
		var err error
		defer func() { done(err) }()
		result, invokeErr := inv.invoke(ctx, handle, operation, inputJSON, tenant)
		err = invokeErr
		return result, invokeErr
	}
	return inv.invoke(ctx, handle, operation, inputJSON, tenant)
}

// invoke is the untracked invocation sequence, wrapped by Invoke with
// RED-metrics bookkeeping when an observability.Provider is configured.
func (inv *Invoker) invoke(ctx context.Context, handle *loader.ComponentHandle, operation string, inputJSON json.RawMessage, tenant binder.TenantCtx) (json.RawMessage, error) {
	if !handle.Info.HasOperation(operation) {
		return nil, comperr.OperationNotFound(operation)
	}

	binding, ok := handle.TenantBinding(tenant.Key())
	if !ok {
		return nil, comperr.BindingNotFound(tenant.Key())
	}

	wallTimeMS := 30000
	if handle.Info.Limits != nil && handle.Info.Limits.WallTimeMS > 0 {
		wallTimeMS = handle.Info.Limits.WallTimeMS
	}

	// The cancel func is deferred immediately so the deadline is always
	// disarmed on scope exit; this is this host's idiomatic-Go stand-in
	// for the guard-drop-disarms-cancellation invariant, achieved through
	// per-call context isolation rather than a shared epoch counter.
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(wallTimeMS)*time.Millisecond)
	defer cancel()

	deadline := time.Now().Add(time.Duration(wallTimeMS) * time.Millisecond)
	deadlineUnixMS := deadline.UnixMilli()

	policy := hostimport.NewHostPolicy(handle.Info.Capabilities.Host)

	var limiter *rate.Limiter
	if handle.Info.Capabilities.Host.HTTP != nil {
		limiter = rate.NewLimiter(rate.Limit(10), 20)
	}

	state := &hostimport.HostState{
		Tenant:      tenant,
		ConfigJSON:  binding.Config,
		Secrets:     binding.Secrets,
		Policy:      policy,
		HTTPClient:  inv.deps.HTTPClient,
		HTTPLimiter: limiter,
		StateStore:  inv.deps.StateStore,
		StateScope: statestore.Scope{
			Env:    tenant.Env,
			Tenant: tenant.Tenant,
			Team:   tenant.Team,
			User:   tenant.User,
		},
		Logger:   inv.deps.Logger,
		Deadline: deadline,
	}
	callCtx = hostimport.WithHostState(callCtx, state)

	mod, err := handle.Binding.Instantiate(callCtx, handle.Engine.Runtime, handle.Compiled, handle.Info.ID+"-call")
	if err != nil {
		return nil, classifyError(err, callCtx, handle, nil)
	}
	defer mod.Close(context.WithoutCancel(callCtx))

	ec := execCtx{
		Tenant:         tenant.Tenant,
		Team:           tenant.Team,
		User:           tenant.User,
		TraceID:        tenant.TraceID,
		CorrelationID:  tenant.CorrelationID,
		DeadlineUnixMS: &deadlineUnixMS,
		Attempt:        tenant.Attempt,
		IdempotencyKey: tenant.IdempotencyKey,
	}
	ecJSON, err := json.Marshal(ec)
	if err != nil {
		return nil, comperr.JSON(err)
	}

	result, err := handle.Binding.CallInvoke(callCtx, mod, ecJSON, operation, inputJSON)
	if err != nil {
		return nil, classifyError(err, callCtx, handle, mod)
	}

	if result.Err != nil {
		return nil, comperr.Runtime(result.Err.Code, result.Err.Message, result.Err.Retryable, result.Err.BackoffMS, result.Err.Details)
	}
	return result.Ok, nil
}

// classifyError distinguishes a timed-out call, a memory-limit breach,
// and a plain guest runtime trap, per §4.5 step 8. wazero surfaces
// deadline exceedance and memory exhaustion as plain errors from the
// call rather than distinguishable typed errors, so classification
// falls back to context state and observed guest memory size.
func classifyError(err error, ctx context.Context, handle *loader.ComponentHandle, mod api.Module) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		wallTimeMS := 30000
		if handle.Info.Limits != nil && handle.Info.Limits.WallTimeMS > 0 {
			wallTimeMS = handle.Info.Limits.WallTimeMS
		}
		return comperr.Timeout(wallTimeMS)
	}

	if mod != nil && handle.Engine != nil && handle.Engine.MemoryCapBytes > 0 {
		if engine.MemoryBytes(mod) >= handle.Engine.MemoryCapBytes {
			memoryMB := 0
			if handle.Info.Limits != nil {
				memoryMB = handle.Info.Limits.MemoryMB
			}
			return comperr.MemoryLimit(memoryMB)
		}
	}

	return comperr.Engine(err, "guest runtime trap")
}
