// Package manifest parses and validates the declarative ComponentManifest
// and compiles its config schema.
package manifest

import "encoding/json"

// Operation describes one exported entry point.
type Operation struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

// WasiCapabilities groups the WASI-level capability grants.
type WasiCapabilities struct {
	Filesystem *FilesystemCapability `json:"filesystem,omitempty"`
	Env        bool                  `json:"env,omitempty"`
	Random     bool                  `json:"random,omitempty"`
	Clocks     bool                  `json:"clocks,omitempty"`
}

// FilesystemCapability scopes WASI preopened-directory access.
type FilesystemCapability struct {
	Mode  string   `json:"mode"` // "ro" | "rw"
	Mount []string `json:"mount,omitempty"`
}

// HostCapabilities groups the host-import capability grants.
type HostCapabilities struct {
	Secrets   bool           `json:"secrets,omitempty"`
	State     *StateScope    `json:"state,omitempty"`
	Messaging bool           `json:"messaging,omitempty"`
	Events    bool           `json:"events,omitempty"`
	HTTP      *HTTPScope     `json:"http,omitempty"`
	Telemetry bool           `json:"telemetry,omitempty"`
	IaC       bool           `json:"iac,omitempty"`
}

// StateScope scopes the state.{read,write,delete} host imports.
type StateScope struct {
	Read   bool `json:"read,omitempty"`
	Write  bool `json:"write,omitempty"`
	Delete bool `json:"delete,omitempty"`
}

// HTTPScope scopes the http.fetch host import to a domain allow list.
type HTTPScope struct {
	Domains []string `json:"domains,omitempty"`
}

// Capabilities is the top-level capability grouping.
type Capabilities struct {
	Wasi WasiCapabilities `json:"wasi"`
	Host HostCapabilities `json:"host"`
}

// SecretScope identifies the binding dimensions a secret is scoped to.
type SecretScope struct {
	Env    string `json:"env"`
	Tenant string `json:"tenant"`
	Team   string `json:"team,omitempty"`
}

// SecretRequirement describes one secret the component declares it needs.
type SecretRequirement struct {
	Key    string          `json:"key"`
	Scope  SecretScope     `json:"scope"`
	Format string          `json:"format"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Limits bounds a single invocation's resource usage.
type Limits struct {
	MemoryMB     int  `json:"memory_mb"`
	WallTimeMS   int  `json:"wall_time_ms"`
	Fuel         *int `json:"fuel,omitempty"`
	MaxOpenFiles *int `json:"max_open_files,omitempty"`
}

// Artifacts locates the component binary relative to the manifest.
type Artifacts struct {
	ComponentWasm string `json:"component_wasm"`
}

// Hashes carries the expected digest of the component binary.
type Hashes struct {
	ComponentWasm string `json:"component_wasm"`
}

// ComponentManifest is the raw, as-declared manifest document.
type ComponentManifest struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Version           string              `json:"version"`
	World             string              `json:"world"`
	Operations        []Operation         `json:"operations"`
	DefaultOperation  string              `json:"default_operation,omitempty"`
	Capabilities      Capabilities        `json:"capabilities"`
	SecretRequirements []SecretRequirement `json:"secret_requirements,omitempty"`
	Limits            *Limits             `json:"limits,omitempty"`
	ConfigSchema      json.RawMessage     `json:"config_schema"`
	Artifacts         Artifacts           `json:"artifacts"`
	Hashes            Hashes              `json:"hashes"`
}

// ComponentInfo is the validated, compiled form produced by Validate.
type ComponentInfo struct {
	ID               string
	Name             string
	Version          string
	World            string
	ABIVersion       string
	Operations       []Operation
	DefaultOperation string
	Capabilities     Capabilities
	SecretRequirements []SecretRequirement
	Limits           *Limits
	ConfigSchemaJSON json.RawMessage
	Artifacts        Artifacts
	Hashes           Hashes
	Raw              json.RawMessage
}

// HasOperation reports whether name is among the declared operations.
func (i *ComponentInfo) HasOperation(name string) bool {
	for _, op := range i.Operations {
		if op.Name == name {
			return true
		}
	}
	return false
}

// SecretKeys returns the set of declared secret requirement keys.
func (i *ComponentInfo) SecretKeys() map[string]struct{} {
	out := make(map[string]struct{}, len(i.SecretRequirements))
	for _, s := range i.SecretRequirements {
		out[s.Key] = struct{}{}
	}
	return out
}
