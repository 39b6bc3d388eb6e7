// Package binder validates and stores per-tenant configuration and
// secret bindings against a loaded component handle.
package binder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/compruntime/host/internal/component/comperr"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TenantCtx identifies the tenant a binding or invocation belongs to.
type TenantCtx struct {
	Env            string
	Tenant         string
	Team           string
	User           string
	TraceID        string
	CorrelationID  string
	DeadlineUnixMS *int64
	Attempt        int
	IdempotencyKey string
}

// Key returns the binding-table key "{env}::{tenant}" for this tenant.
func (t TenantCtx) Key() string { return t.Env + "::" + t.Tenant }

// Bindings is the caller-supplied (config, requested secrets) pair for a
// bind call.
type Bindings struct {
	Config  json.RawMessage
	Secrets []string
}

// TenantBinding is what gets stored in the handle's binding table:
// validated config plus resolved secret bytes.
type TenantBinding struct {
	Config  json.RawMessage
	Secrets map[string][]byte
}

// SecretResolver resolves a declared secret name to opaque bytes for a
// given tenant. Implementations must never log the returned bytes.
type SecretResolver interface {
	Resolve(ctx context.Context, key string, tenant TenantCtx) ([]byte, error)
}

// HandleView is the subset of ComponentHandle the binder needs: the
// compiled config schema, the set of declared secret keys, and a place
// to atomically store the resulting binding. Declared as an interface so
// the loader package (which owns the concrete handle type) stays the
// only importer of wazero internals.
type HandleView interface {
	ConfigSchema() *jsonschema.Schema
	SecretKeys() map[string]struct{}
	SetBinding(tenantKey string, binding TenantBinding)
}

// Bind implements §4.4: validate config, resolve secrets, replace the
// binding for tenant-key(tenant) atomically.
func Bind(ctx context.Context, handle HandleView, tenant TenantCtx, bindings Bindings, resolver SecretResolver) error {
	if err := validateConfig(handle.ConfigSchema(), bindings.Config); err != nil {
		return err
	}

	allowed := handle.SecretKeys()
	resolved := make(map[string]struct{}, len(bindings.Secrets))
	secretValues := make(map[string][]byte, len(bindings.Secrets))

	for _, key := range bindings.Secrets {
		if _, ok := allowed[key]; !ok {
			return comperr.SecretNotDeclared(key)
		}
		if _, already := resolved[key]; already {
			continue
		}
		value, err := resolver.Resolve(ctx, key, tenant)
		if err != nil {
			return comperr.SecretResolution(key, err)
		}
		resolved[key] = struct{}{}
		secretValues[key] = value
	}

	handle.SetBinding(tenant.Key(), TenantBinding{
		Config:  bindings.Config,
		Secrets: secretValues,
	})
	return nil
}

func validateConfig(schema *jsonschema.Schema, config json.RawMessage) error {
	var v any
	if err := json.Unmarshal(config, &v); err != nil {
		return comperr.SchemaValidation([]string{fmt.Sprintf("config is not valid JSON: %v", err)})
	}
	if err := schema.Validate(v); err != nil {
		return comperr.SchemaValidation(collectValidationMessages(err))
	}
	return nil
}

// collectValidationMessages flattens a jsonschema validation error tree
// into the individual leaf messages, matching the "all reported errors
// are concatenated into one SchemaValidation error" rule.
func collectValidationMessages(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	if len(ve.Causes) == 0 {
		return []string{ve.Error()}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, collectValidationMessages(cause)...)
	}
	return out
}
