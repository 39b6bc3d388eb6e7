package secrets

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/compruntime/host/internal/component/binder"
)

func TestEnvResolverFound(t *testing.T) {
	t.Setenv("COMP_PROD_ACME_API_KEY", "shh")
	r := NewEnvResolver("COMP")
	tenant := binder.TenantCtx{Env: "prod", Tenant: "acme"}

	val, err := r.Resolve(context.Background(), "api_key", tenant)
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "shh" {
		t.Fatalf("got %q", val)
	}
}

func TestEnvResolverMissing(t *testing.T) {
	os.Unsetenv("COMP_PROD_ACME_MISSING_KEY")
	r := NewEnvResolver("COMP")
	tenant := binder.TenantCtx{Env: "prod", Tenant: "acme"}

	if _, err := r.Resolve(context.Background(), "missing_key", tenant); err == nil {
		t.Fatal("expected error for missing env var")
	}
}

func TestJWTResolverIssuesAndCaches(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewJWTResolver([]byte("test-signing-key"), "compruntime", time.Hour, 5*time.Minute).
		WithClock(func() time.Time { return now })
	tenant := binder.TenantCtx{Env: "prod", Tenant: "acme"}

	first, err := r.Resolve(context.Background(), "downstream_token", tenant)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(context.Background(), "downstream_token", tenant)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("expected cached token to be reused within ttl")
	}
}

func TestJWTResolverRenewsNearExpiry(t *testing.T) {
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewJWTResolver([]byte("test-signing-key"), "compruntime", time.Hour, 5*time.Minute).
		WithClock(func() time.Time { return cur })
	tenant := binder.TenantCtx{Env: "prod", Tenant: "acme"}

	first, err := r.Resolve(context.Background(), "downstream_token", tenant)
	if err != nil {
		t.Fatal(err)
	}
	cur = cur.Add(56 * time.Minute) // inside the 5-minute renewal window
	second, err := r.Resolve(context.Background(), "downstream_token", tenant)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) == string(second) {
		t.Fatal("expected token to be renewed near expiry")
	}
}

func TestJWTResolverDerivesDistinctSubkeysPerTenant(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewJWTResolver([]byte("test-signing-key"), "compruntime", time.Hour, 5*time.Minute).
		WithClock(func() time.Time { return now })

	acme, err := r.Resolve(context.Background(), "downstream_token", binder.TenantCtx{Env: "prod", Tenant: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	globex, err := r.Resolve(context.Background(), "downstream_token", binder.TenantCtx{Env: "prod", Tenant: "globex"})
	if err != nil {
		t.Fatal(err)
	}

	acmeParts := strings.Split(string(acme), ".")
	globexParts := strings.Split(string(globex), ".")
	if acmeParts[2] == globexParts[2] {
		t.Fatal("expected tenants to produce different signatures from distinct derived subkeys")
	}

	acmeKey, err := r.tenantSubkey(binder.TenantCtx{Env: "prod", Tenant: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	globexKey, err := r.tenantSubkey(binder.TenantCtx{Env: "prod", Tenant: "globex"})
	if err != nil {
		t.Fatal(err)
	}
	if string(acmeKey) == string(globexKey) {
		t.Fatal("expected distinct tenants to derive distinct subkeys")
	}
	if len(acmeKey) != 32 {
		t.Fatalf("expected 32-byte derived subkey, got %d", len(acmeKey))
	}
}

func TestJWTResolverSubkeyDerivationIsDeterministic(t *testing.T) {
	r := NewJWTResolver([]byte("test-signing-key"), "compruntime", time.Hour, 5*time.Minute)
	tenant := binder.TenantCtx{Env: "prod", Tenant: "acme"}

	first, err := r.tenantSubkey(tenant)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.tenantSubkey(tenant)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("expected subkey derivation to be deterministic for the same tenant")
	}
}
