package hostimport

import (
	"testing"
	"time"

	"github.com/compruntime/host/internal/component/manifest"
)

func TestCheckSecretsDeniedWhenNotGranted(t *testing.T) {
	p := NewHostPolicy(manifest.HostCapabilities{})
	if p.CheckSecrets() {
		t.Fatal("expected secrets to be denied")
	}
	if len(p.Violations()) != 1 {
		t.Fatalf("expected one recorded violation, got %d", len(p.Violations()))
	}
}

func TestCheckSecretsAllowedWhenGranted(t *testing.T) {
	p := NewHostPolicy(manifest.HostCapabilities{Secrets: true})
	if !p.CheckSecrets() {
		t.Fatal("expected secrets to be allowed")
	}
}

func TestCheckHTTPDomainAllowlist(t *testing.T) {
	p := NewHostPolicy(manifest.HostCapabilities{HTTP: &manifest.HTTPScope{Domains: []string{"example.com"}}})
	if !p.CheckHTTPDomain("example.com") {
		t.Fatal("expected exact domain match to be allowed")
	}
	if !p.CheckHTTPDomain("api.example.com") {
		t.Fatal("expected subdomain to be allowed")
	}
	if p.CheckHTTPDomain("evil.com") {
		t.Fatal("expected unrelated domain to be denied")
	}
}

func TestCheckHTTPDomainNoCapability(t *testing.T) {
	p := NewHostPolicy(manifest.HostCapabilities{})
	if p.CheckHTTPDomain("example.com") {
		t.Fatal("expected denial when host.http is not granted")
	}
}

func TestCheckHTTPDomainCELRule(t *testing.T) {
	p := NewHostPolicy(manifest.HostCapabilities{HTTP: &manifest.HTTPScope{Domains: []string{"example.com"}}})
	if err := p.WithHTTPDomainRule(`domain.endsWith("example.com")`); err != nil {
		t.Fatal(err)
	}
	if !p.CheckHTTPDomain("sub.example.com") {
		t.Fatal("expected CEL rule to allow matching domain")
	}
	if p.CheckHTTPDomain("example.org") {
		t.Fatal("expected CEL rule to deny non-matching domain")
	}
}

func TestCheckStateRequiresCapabilityFlags(t *testing.T) {
	p := NewHostPolicy(manifest.HostCapabilities{State: &manifest.StateScope{Read: true}})
	if !p.CheckState(StateRead, "k") {
		t.Fatal("expected read to be allowed")
	}
	if p.CheckState(StateWrite, "k") {
		t.Fatal("expected write to be denied")
	}
}

func TestWithClockTimestampsViolations(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewHostPolicy(manifest.HostCapabilities{}).WithClock(func() time.Time { return fixed })
	p.CheckSecrets()
	violations := p.Violations()
	if len(violations) != 1 || !violations[0].Timestamp.Equal(fixed) {
		t.Fatalf("got %+v", violations)
	}
}

func TestApplyHeadersStringAndArray(t *testing.T) {
	req := newTestRequest(t)
	headers := map[string]any{
		"X-Single": "a",
		"X-Multi":  []any{"b", "c"},
	}
	if err := applyHeaders(req, headers); err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Values("X-Single"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v", got)
	}
	if got := req.Header.Values("X-Multi"); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestApplyHeadersInvalidShape(t *testing.T) {
	req := newTestRequest(t)
	if err := applyHeaders(req, map[string]any{"X-Bad": 5}); err == nil {
		t.Fatal("expected error for non-string/array header value")
	}
}

func TestApplyHeadersNil(t *testing.T) {
	req := newTestRequest(t)
	if err := applyHeaders(req, nil); err != nil {
		t.Fatal(err)
	}
}
