package loader

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/compruntime/host/internal/component/abi"
	"github.com/compruntime/host/internal/component/binder"
	"github.com/compruntime/host/internal/component/comperr"
	"github.com/compruntime/host/internal/component/descriptor"
	"github.com/compruntime/host/internal/component/engine"
	"github.com/compruntime/host/internal/component/hostimport"
	"github.com/compruntime/host/internal/component/locator"
	"github.com/compruntime/host/internal/component/manifest"
	"github.com/compruntime/host/internal/component/store"
	"github.com/compruntime/host/internal/component/verify"
	"github.com/tetratelabs/wazero"
	"lukechampine.com/blake3"
)

// LoadPolicy configures how a load call verifies the manifest and
// artifact bytes it fetches.
type LoadPolicy struct {
	Manifest verify.VerificationPolicy
	Artifact verify.VerificationPolicy
}

// Loader fetches, validates, compiles, and instantiates components.
type Loader struct {
	Store     *store.Store
	Validator *manifest.Validator
	Logger    *slog.Logger
}

// New creates a Loader over the given artifact store and manifest
// validator.
func New(st *store.Store, validator *manifest.Validator, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Store: st, Validator: validator, Logger: logger}
}

// Load implements the 8-step algorithm in §4.3: fetch the manifest,
// fetch and verify the component binary it declares, create a sandbox
// engine sized to the manifest's limits, build the host-import module,
// compile the guest module once, instantiate it exactly once to
// cross-check the guest's self-reported shape against the declarative
// manifest, compile the config schema, and return a handle that never
// holds a live guest instance again.
func (l *Loader) Load(ctx context.Context, manifestLoc locator.Locator, policy LoadPolicy) (*ComponentHandle, error) {
	manifestArtifact, err := l.Store.Fetch(ctx, manifestLoc, policy.Manifest)
	if err != nil {
		return nil, err
	}

	info, err := l.Validator.Validate(manifestArtifact.Bytes)
	if err != nil {
		return nil, err
	}

	artifactLoc, err := resolveArtifactLocator(manifestLoc, info.Artifacts.ComponentWasm)
	if err != nil {
		return nil, err
	}

	wasmArtifact, err := l.Store.Fetch(ctx, artifactLoc, policy.Artifact)
	if err != nil {
		return nil, err
	}

	declaredHash := strings.TrimPrefix(info.Hashes.ComponentWasm, "blake3:")
	if err := verifyBlake3(wasmArtifact.Bytes, declaredHash); err != nil {
		return nil, err
	}

	memoryMB := 0
	if info.Limits != nil {
		memoryMB = info.Limits.MemoryMB
	}
	eng, err := engine.New(ctx, memoryMB)
	if err != nil {
		return nil, comperr.Engine(err, "creating sandbox engine for %s", info.ID)
	}

	hostModule, err := hostimport.BuildHostModule(ctx, eng.Runtime)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, comperr.Engine(err, "building host import module for %s", info.ID)
	}

	compiled, err := eng.CompileModule(ctx, wasmArtifact.Bytes)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	abiVersion, ok := abi.Parse(info.ABIVersion)
	if !ok {
		_ = eng.Close(ctx)
		return nil, comperr.Manifest("unrecognized abi version %q", info.ABIVersion)
	}
	binding := abi.New(abiVersion)

	desc, err := l.crossCheck(ctx, eng.Runtime, compiled, binding, info)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	configSchema, err := manifest.CompileConfigSchema(info.ConfigSchemaJSON)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	return &ComponentHandle{
		Info:         info,
		ABI:          abiVersion,
		Binding:      binding,
		Engine:       eng,
		Compiled:     compiled,
		HostModule:   hostModule,
		configSchema: configSchema,
		Descriptor:   desc,
		bindings:     make(map[string]binder.TenantBinding),
	}, nil
}

// resolveArtifactLocator joins a manifest's locator directory with the
// artifact's manifest-relative path, preserving the manifest's scheme.
func resolveArtifactLocator(manifestLoc locator.Locator, relPath string) (locator.Locator, error) {
	switch manifestLoc.Scheme {
	case locator.SchemeFs:
		dir := path.Dir(manifestLoc.Path)
		return locator.Locator{Scheme: locator.SchemeFs, Path: path.Join(dir, relPath)}, nil
	case locator.SchemeHttp, locator.SchemeHttps:
		dir := path.Dir(manifestLoc.Ref)
		ref := path.Join(dir, relPath)
		return locator.Locator{Scheme: manifestLoc.Scheme, Ref: ref}, nil
	default:
		return locator.Locator{}, comperr.UnsupportedScheme(string(manifestLoc.Scheme))
	}
}

// verifyBlake3 checks the manifest-declared blake3 content hash of the
// component binary. This is independent of the artifact store's own
// sha256-based cache keys, which exist purely for content-addressed
// deduplication.
func verifyBlake3(data []byte, expectedHex string) error {
	sum := blake3.Sum256(data)
	got := hexEncode(sum[:])
	if !strings.EqualFold(got, expectedHex) {
		return comperr.Verification("component binary blake3 digest mismatch: expected %s, got %s", expectedHex, got)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}

// crossCheck performs the loader's one-shot instantiate-and-call step.
// For the 0.6 ABI it calls the describe export, decodes the canonical
// CBOR descriptor strictly, verifies its schema hashes, and cross-checks
// world/version agreement with the manifest — any disagreement is
// fatal. For 0.4/0.5, which have no describe export, it logs that it is
// falling back to the manifest's own config_schema per the §9
// descriptor fallback rule, rather than treating the absence as an
// error.
func (l *Loader) crossCheck(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, binding abi.Binding, info *manifest.ComponentInfo) (*descriptor.ComponentDescriptor, error) {
	mod, err := binding.Instantiate(ctx, rt, compiled, info.ID+"-crosscheck")
	if err != nil {
		return nil, err
	}
	defer mod.Close(ctx)

	payload, ok, err := binding.CallDescribe(ctx, mod)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.Logger.Warn("component has no describe export, falling back to manifest config_schema",
			"component_id", info.ID, "abi_version", binding.Version())
		return nil, nil
	}

	desc, canonical, err := descriptor.Decode(payload, true)
	if err != nil {
		return nil, err
	}
	if !canonical {
		return nil, comperr.Manifest("component %s: describe payload is not canonical CBOR", info.ID)
	}
	if err := descriptor.VerifySchemaHashes(desc); err != nil {
		return nil, err
	}

	if desc.Info.World != info.World {
		return nil, comperr.Manifest("component %s: describe world %q disagrees with manifest world %q", info.ID, desc.Info.World, info.World)
	}
	if desc.Info.Version != info.Version {
		return nil, comperr.Manifest("component %s: describe version %q disagrees with manifest version %q", info.ID, desc.Info.Version, info.Version)
	}

	declaredOps := make(map[string]struct{}, len(desc.Operations))
	for _, op := range desc.Operations {
		declaredOps[op.Name] = struct{}{}
	}
	manifestOps := make(map[string]struct{}, len(info.Operations))
	for _, op := range info.Operations {
		manifestOps[op.Name] = struct{}{}
	}
	if len(declaredOps) != len(manifestOps) {
		return nil, comperr.Manifest("component %s: describe operation count disagrees with manifest", info.ID)
	}
	for name := range manifestOps {
		if _, ok := declaredOps[name]; !ok {
			return nil, comperr.Manifest("component %s: manifest operation %q not present in describe output", info.ID, name)
		}
	}

	return desc, nil
}
