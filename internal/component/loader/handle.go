// Package loader fetches, validates, compiles, and instantiates a
// component once, producing a ComponentHandle that the binder and
// invoker packages operate against for the handle's remaining lifetime.
package loader

import (
	"context"
	"sync"

	"github.com/compruntime/host/internal/component/abi"
	"github.com/compruntime/host/internal/component/binder"
	"github.com/compruntime/host/internal/component/descriptor"
	"github.com/compruntime/host/internal/component/engine"
	"github.com/compruntime/host/internal/component/manifest"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ComponentHandle is the engine + pre-compiled module + validated
// manifest + binding table bundle a caller binds tenants against and
// invokes operations on. It never holds a live guest instance across
// calls: every Invoke creates and tears down its own.
type ComponentHandle struct {
	Info       *manifest.ComponentInfo
	ABI        abi.Version
	Binding    abi.Binding
	Engine     *engine.Engine
	Compiled   wazero.CompiledModule
	HostModule api.Module
	Descriptor *descriptor.ComponentDescriptor

	configSchema *jsonschema.Schema

	mu       sync.RWMutex
	bindings map[string]binder.TenantBinding
}

// ConfigSchema implements binder.HandleView.
func (h *ComponentHandle) ConfigSchema() *jsonschema.Schema { return h.configSchema }

// SecretKeys implements binder.HandleView.
func (h *ComponentHandle) SecretKeys() map[string]struct{} { return h.Info.SecretKeys() }

// SetBinding implements binder.HandleView, atomically replacing any
// existing entry for tenantKey.
func (h *ComponentHandle) SetBinding(tenantKey string, binding binder.TenantBinding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bindings == nil {
		h.bindings = make(map[string]binder.TenantBinding)
	}
	h.bindings[tenantKey] = binding
}

// TenantBinding looks up a previously bound tenant's configuration/secrets.
func (h *ComponentHandle) TenantBinding(tenantKey string) (binder.TenantBinding, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.bindings[tenantKey]
	return b, ok
}

// Close releases the handle's engine (and with it every compiled
// module instantiated against it).
func (h *ComponentHandle) Close(ctx context.Context) error {
	return h.Engine.Close(ctx)
}
