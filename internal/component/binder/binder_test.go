package binder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type fakeHandle struct {
	schema   *jsonschema.Schema
	secrets  map[string]struct{}
	bindings map[string]TenantBinding
}

func (f *fakeHandle) ConfigSchema() *jsonschema.Schema  { return f.schema }
func (f *fakeHandle) SecretKeys() map[string]struct{}   { return f.secrets }
func (f *fakeHandle) SetBinding(key string, b TenantBinding) {
	if f.bindings == nil {
		f.bindings = make(map[string]TenantBinding)
	}
	f.bindings[key] = b
}

func compileSchema(t *testing.T, schemaJSON string) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	const url = "test://config.json"
	if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		t.Fatal(err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		t.Fatal(err)
	}
	return schema
}

func componentFixture(t *testing.T) *fakeHandle {
	t.Helper()
	schema := compileSchema(t, `{
		"type": "object",
		"required": ["enabled"],
		"properties": {"enabled": {"type": "boolean"}}
	}`)
	return &fakeHandle{
		schema:  schema,
		secrets: map[string]struct{}{"API_KEY": {}},
	}
}

func tenantCtx() TenantCtx {
	return TenantCtx{Env: "prod", Tenant: "acme"}
}

type stubResolver struct {
	values map[string][]byte
	err    error
}

func (r *stubResolver) Resolve(_ context.Context, key string, _ TenantCtx) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.values[key], nil
}

func TestResolvesValidBinding(t *testing.T) {
	handle := componentFixture(t)
	resolver := &stubResolver{values: map[string][]byte{"API_KEY": []byte("shh")}}

	err := Bind(context.Background(), handle, tenantCtx(), Bindings{
		Config:  json.RawMessage(`{"enabled": true}`),
		Secrets: []string{"API_KEY"},
	}, resolver)
	if err != nil {
		t.Fatal(err)
	}

	binding, ok := handle.bindings[tenantCtx().Key()]
	if !ok {
		t.Fatal("expected binding to be stored")
	}
	if string(binding.Secrets["API_KEY"]) != "shh" {
		t.Fatalf("got %q", binding.Secrets["API_KEY"])
	}
}

func TestRejectsUnknownSecret(t *testing.T) {
	handle := componentFixture(t)
	resolver := &stubResolver{values: map[string][]byte{"OTHER": []byte("x")}}

	err := Bind(context.Background(), handle, tenantCtx(), Bindings{
		Config:  json.RawMessage(`{"enabled": true}`),
		Secrets: []string{"OTHER"},
	}, resolver)

	if err == nil {
		t.Fatal("expected error for undeclared secret")
	}
	if _, ok := handle.bindings[tenantCtx().Key()]; ok {
		t.Fatal("expected no binding to be stored on rejection")
	}
}

func TestRejectsInvalidConfig(t *testing.T) {
	handle := componentFixture(t)
	resolver := &stubResolver{}

	err := Bind(context.Background(), handle, tenantCtx(), Bindings{
		Config: json.RawMessage(`{"enabled": "not-a-bool"}`),
	}, resolver)

	if err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestResolverNeverCalledForUndeclaredSecret(t *testing.T) {
	handle := componentFixture(t)
	resolver := &stubResolver{err: errors.New("resolver must not be called")}

	err := Bind(context.Background(), handle, tenantCtx(), Bindings{
		Config:  json.RawMessage(`{"enabled": true}`),
		Secrets: []string{"UNDECLARED"},
	}, resolver)

	if err == nil {
		t.Fatal("expected rejection before resolver is consulted")
	}
}
