// Package secrets provides SecretResolver implementations the binder
// calls once a key has been confirmed declared in a component's
// secret_requirements. Resolution errors are always wrapped with the
// secret's key and never its value, per the error handling design's
// propagation policy.
//
// Grounded on pkg/runtime/sandbox/broker.go's CredentialBroker
// (mutex-guarded map, injectable clock for deterministic tests),
// generalized from scoped-token issuance to plain secret-value
// resolution.
package secrets

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/compruntime/host/internal/component/binder"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// EnvResolver resolves secrets from process environment variables,
// namespaced by tenant env/tenant to avoid cross-tenant leakage in local
// and development deployments. Production deployments are expected to
// supply a vault- or KMS-backed resolver implementing the same
// interface.
type EnvResolver struct {
	prefix string
}

// NewEnvResolver creates a resolver that reads
// "<prefix>_<ENV>_<TENANT>_<KEY>" environment variables.
func NewEnvResolver(prefix string) *EnvResolver {
	return &EnvResolver{prefix: prefix}
}

func (r *EnvResolver) Resolve(_ context.Context, key string, tenant binder.TenantCtx) ([]byte, error) {
	envName := strings.ToUpper(strings.Join([]string{r.prefix, tenant.Env, tenant.Tenant, key}, "_"))
	envName = strings.ReplaceAll(envName, "-", "_")
	val, ok := os.LookupEnv(envName)
	if !ok {
		return nil, fmt.Errorf("secret %q not found in environment (expected %s)", key, envName)
	}
	return []byte(val), nil
}

// cachedToken is a short-lived signed JWT cached until shortly before
// expiry.
type cachedToken struct {
	value     []byte
	expiresAt time.Time
}

// JWTResolver issues short-lived signed JWTs for secret requirements
// declared with format:"jwt", caching each tenant/key pair's token until
// it is within the renewal window of expiring.
type JWTResolver struct {
	mu          sync.Mutex
	signingKey  []byte
	issuer      string
	ttl         time.Duration
	renewWindow time.Duration
	clock       func() time.Time
	cache       map[string]cachedToken
}

// NewJWTResolver creates a resolver that signs HS256 tokens with
// signingKey, valid for ttl and renewed renewWindow before expiry.
func NewJWTResolver(signingKey []byte, issuer string, ttl, renewWindow time.Duration) *JWTResolver {
	return &JWTResolver{
		signingKey:  signingKey,
		issuer:      issuer,
		ttl:         ttl,
		renewWindow: renewWindow,
		clock:       time.Now,
		cache:       make(map[string]cachedToken),
	}
}

// WithClock overrides the clock for deterministic tests.
func (r *JWTResolver) WithClock(clock func() time.Time) *JWTResolver {
	r.clock = clock
	return r
}

func (r *JWTResolver) Resolve(_ context.Context, key string, tenant binder.TenantCtx) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cacheKey := tenant.Key() + "::" + key
	now := r.clock()
	if cached, ok := r.cache[cacheKey]; ok && now.Before(cached.expiresAt.Add(-r.renewWindow)) {
		return cached.value, nil
	}

	subkey, err := r.tenantSubkey(tenant)
	if err != nil {
		return nil, fmt.Errorf("deriving signing subkey for tenant %q: %w", tenant.Key(), err)
	}

	expiresAt := now.Add(r.ttl)
	claims := jwt.MapClaims{
		"iss":    r.issuer,
		"sub":    tenant.Tenant,
		"env":    tenant.Env,
		"secret": key,
		"iat":    now.Unix(),
		"exp":    expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(subkey)
	if err != nil {
		return nil, fmt.Errorf("signing jwt for secret %q: %w", key, err)
	}

	r.cache[cacheKey] = cachedToken{value: []byte(signed), expiresAt: expiresAt}
	return []byte(signed), nil
}

// tenantSubkey derives a tenant-scoped signing key from the resolver's
// master key via HKDF-SHA256, so a leaked token for one tenant cannot
// be replayed as proof of the master key, and no two tenants ever sign
// with the identical byte string.
func (r *JWTResolver) tenantSubkey(tenant binder.TenantCtx) ([]byte, error) {
	kdf := hkdf.New(sha256.New, r.signingKey, nil, []byte("compruntime-secret-jwt:"+tenant.Key()))
	subkey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, subkey); err != nil {
		return nil, err
	}
	return subkey, nil
}
