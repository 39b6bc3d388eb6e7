package hostimport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/compruntime/host/internal/component/binder"
	"github.com/compruntime/host/internal/component/statestore"
	"golang.org/x/time/rate"
)

type contextKey struct{}

var hostStateContextKey = contextKey{}

// HostState is the fresh, per-call mutable state the invoker builds
// before each invocation and threads through ctx to every host-import
// function. Secret bytes live only here, never logged or persisted
// beyond the call.
type HostState struct {
	Tenant       binder.TenantCtx
	ConfigJSON   json.RawMessage
	Secrets      map[string][]byte
	Policy       *HostPolicy
	HTTPClient   *http.Client
	HTTPLimiter  *rate.Limiter
	StateStore   statestore.Store
	StateScope   statestore.Scope
	Logger       *slog.Logger
	Deadline     time.Time
}

// WithHostState returns a context carrying state for host-import
// functions invoked during this call.
func WithHostState(ctx context.Context, state *HostState) context.Context {
	return context.WithValue(ctx, hostStateContextKey, state)
}

// FromContext retrieves the HostState stashed by WithHostState.
func FromContext(ctx context.Context) (*HostState, bool) {
	state, ok := ctx.Value(hostStateContextKey).(*HostState)
	return state, ok
}

// ShouldCancel reports whether the call's deadline has already passed.
func (s *HostState) ShouldCancel() bool {
	return !s.Deadline.IsZero() && time.Now().After(s.Deadline)
}
