package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifestJSON() string {
	return `{
		"id": "echo",
		"name": "Echo",
		"version": "1.0.0",
		"world": "greentic:component/component@0.6.0",
		"operations": [{"name": "process"}],
		"default_operation": "process",
		"capabilities": {
			"wasi": {"env": false, "random": true, "clocks": true},
			"host": {"secrets": true}
		},
		"secret_requirements": [{"key": "API_KEY", "scope": {"env": "prod", "tenant": "acme"}, "format": "raw"}],
		"config_schema": {"type": "object"},
		"artifacts": {"component_wasm": "component.wasm"},
		"hashes": {"component_wasm": "blake3:` + strings.Repeat("a", 64) + `"}
	}`
}

func mustValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestValidateHappyPath(t *testing.T) {
	v := mustValidator(t)
	info, err := v.Validate([]byte(validManifestJSON()))
	require.NoError(t, err)
	assert.Equal(t, "0.6", info.ABIVersion)
	assert.True(t, info.HasOperation("process"))
}

func TestValidateRejectsLegacySecretsShape(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(), `"secret_requirements"`, `"secrets"`, 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected legacy secrets shape to be rejected")
	}
}

func TestValidateRejectsDuplicateOperations(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(),
		`"operations": [{"name": "process"}]`,
		`"operations": [{"name": "process"}, {"name": "process"}]`, 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected duplicate operation names to be rejected")
	}
}

func TestValidateRejectsDuplicateSecrets(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(),
		`"secret_requirements": [{"key": "API_KEY", "scope": {"env": "prod", "tenant": "acme"}, "format": "raw"}]`,
		`"secret_requirements": [{"key": "API_KEY", "scope": {"env": "prod", "tenant": "acme"}, "format": "raw"}, {"key": "API_KEY", "scope": {"env": "prod", "tenant": "acme"}, "format": "raw"}]`, 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected duplicate secret keys to be rejected")
	}
}

func TestValidateRejectsInvalidOperationName(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(), `"process"`, `"Process Bad"`, 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected invalid operation name to be rejected")
	}
}

func TestValidateRejectsUnsupportedWorldVersion(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(), "component@0.6.0", "component@1.0.0", 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected unsupported abi world version to be rejected")
	}
}

func TestValidateRejectsDefaultOperationNotDeclared(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(), `"default_operation": "process"`, `"default_operation": "missing"`, 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected default_operation not in operations[] to be rejected")
	}
}

func TestValidateRejectsBadHashFormat(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(), "blake3:"+strings.Repeat("a", 64), "sha256:deadbeef", 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected non-blake3 hash format to be rejected")
	}
}

func TestValidateRejectsAbsoluteArtifactPath(t *testing.T) {
	v := mustValidator(t)
	raw := strings.Replace(validManifestJSON(), `"component_wasm": "component.wasm"`, `"component_wasm": "/etc/component.wasm"`, 1)
	if _, err := v.Validate([]byte(raw)); err == nil {
		t.Fatal("expected absolute artifact path to be rejected")
	}
}

func TestCompileConfigSchemaValid(t *testing.T) {
	schema, err := CompileConfigSchema([]byte(`{"type": "object"}`))
	require.NoError(t, err)
	assert.NoError(t, schema.Validate(map[string]any{}))
}
