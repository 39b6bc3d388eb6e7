// Package hostimport implements the HostImport Mediator: the flat
// dispatch table of host functions a guest invocation can call
// (secrets.get, telemetry.emit, http.fetch, state.{read,write,delete},
// control.{should_cancel,yield_now}), each capability-gated against the
// component's declared manifest capabilities before it runs.
//
// Grounded on pkg/runtime/sandbox/policy.go's SandboxPolicy /
// PolicyEnforcer (mutex-guarded, clock-injectable, audit-trailed
// allow/deny checks), generalized from filesystem/network/capability
// checks to the five host-import surfaces and extended with optional
// google/cel-go predicates for HTTP-domain and state-key scoping beyond
// flat allow lists.
package hostimport

import (
	"strings"
	"sync"
	"time"

	"github.com/compruntime/host/internal/component/manifest"
	"github.com/google/cel-go/cel"
)

// PolicyViolation records one denied host-import call for audit.
type PolicyViolation struct {
	Feature   string
	Detail    string
	Timestamp time.Time
}

// HostPolicy gates host-import calls for one bound component invocation
// against its declared manifest capabilities.
type HostPolicy struct {
	mu         sync.Mutex
	caps       manifest.HostCapabilities
	httpDomain cel.Program // optional; evaluates a "domain" string -> bool
	stateKey   cel.Program // optional; evaluates a "key" string -> bool
	violations []PolicyViolation
	clock      func() time.Time
}

// NewHostPolicy builds a policy from a component's declared host
// capabilities.
func NewHostPolicy(caps manifest.HostCapabilities) *HostPolicy {
	return &HostPolicy{caps: caps, clock: time.Now}
}

// WithClock overrides the clock used to timestamp violations, for
// deterministic tests.
func (p *HostPolicy) WithClock(clock func() time.Time) *HostPolicy {
	p.clock = clock
	return p
}

// WithHTTPDomainRule compiles a CEL expression over a "domain" string
// variable, used instead of (or in addition to) the manifest's flat
// HTTPScope.Domains suffix-match list for finer-grained scoping (e.g.
// allowing subdomains of a tenant-specific base domain).
func (p *HostPolicy) WithHTTPDomainRule(expr string) error {
	env, err := cel.NewEnv(cel.Variable("domain", cel.StringType))
	if err != nil {
		return err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return err
	}
	p.httpDomain = prg
	return nil
}

// WithStateKeyRule compiles a CEL expression over a "key" string
// variable scoping which state keys an operation may touch beyond the
// manifest's read/write/delete flags.
func (p *HostPolicy) WithStateKeyRule(expr string) error {
	env, err := cel.NewEnv(cel.Variable("key", cel.StringType))
	if err != nil {
		return err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return err
	}
	p.stateKey = prg
	return nil
}

func (p *HostPolicy) record(feature, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations = append(p.violations, PolicyViolation{Feature: feature, Detail: detail, Timestamp: p.clock()})
}

// Violations returns every denied call recorded so far.
func (p *HostPolicy) Violations() []PolicyViolation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PolicyViolation, len(p.violations))
	copy(out, p.violations)
	return out
}

// CheckSecrets reports whether host.secrets is granted.
func (p *HostPolicy) CheckSecrets() bool {
	if !p.caps.Secrets {
		p.record("secrets.get", "host.secrets not granted")
		return false
	}
	return true
}

// CheckTelemetry reports whether host.telemetry is granted.
func (p *HostPolicy) CheckTelemetry() bool {
	return p.caps.Telemetry
}

// CheckHTTPDomain reports whether domain is permitted under host.http.
func (p *HostPolicy) CheckHTTPDomain(domain string) bool {
	if p.caps.HTTP == nil {
		p.record("http.fetch", "host.http not granted")
		return false
	}
	if p.httpDomain != nil {
		out, _, err := p.httpDomain.Eval(map[string]any{"domain": domain})
		if err == nil {
			if allowed, ok := out.Value().(bool); ok {
				if !allowed {
					p.record("http.fetch", "denied by domain rule: "+domain)
				}
				return allowed
			}
		}
	}
	for _, allowed := range p.caps.HTTP.Domains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	p.record("http.fetch", "domain not in allowlist: "+domain)
	return false
}

// StateOp identifies which state operation is being checked.
type StateOp string

const (
	StateRead   StateOp = "read"
	StateWrite  StateOp = "write"
	StateDelete StateOp = "delete"
)

// CheckState reports whether op is permitted under host.state, and,
// when a state-key CEL rule is configured, that key is permitted too.
func (p *HostPolicy) CheckState(op StateOp, key string) bool {
	if p.caps.State == nil {
		p.record("state."+string(op), "host.state not granted")
		return false
	}
	switch op {
	case StateRead:
		if !p.caps.State.Read {
			p.record("state.read", "host.state.read not granted")
			return false
		}
	case StateWrite:
		if !p.caps.State.Write {
			p.record("state.write", "host.state.write not granted")
			return false
		}
	case StateDelete:
		if !p.caps.State.Delete {
			p.record("state.delete", "host.state.delete not granted")
			return false
		}
	}
	if p.stateKey != nil {
		out, _, err := p.stateKey.Eval(map[string]any{"key": key})
		if err == nil {
			if allowed, ok := out.Value().(bool); ok && !allowed {
				p.record("state."+string(op), "denied by key rule: "+key)
				return false
			}
		}
	}
	return true
}
