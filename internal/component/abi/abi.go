// Package abi models the three guest ABI versions (component@0.4,
// component@0.5, component@0.6) as a tagged variant sharing one
// invocation convention, since wazero has no native Component Model
// support and every guest here is a plain core-wasm module built to a
// hand-rolled canonical-ABI-like calling convention: the guest exports
// `cabi_realloc(old_ptr, old_size, align, new_size) -> ptr` for the host
// to place argument bytes into guest memory, and one exported function
// per logical operation taking `(ptr, len)` pairs and returning a
// `(ptr, len)` pair (wazero supports multi-value returns for module
// functions that declare them). Version 0.6 additionally requires and
// exposes a `component-descriptor_describe() -> (ptr, len)` export
// returning canonical CBOR.
package abi

// Version tags which of the three ABI variants a handle was built
// against. Selected at load time from the manifest's world field.
type Version string

const (
	V04 Version = "0.4"
	V05 Version = "0.5"
	V06 Version = "0.6"
)

// RequiresDescribe reports whether this ABI version mandates the
// component-descriptor.describe export (only 0.6 does).
func (v Version) RequiresDescribe() bool { return v == V06 }

// Parse validates a raw ABI version string.
func Parse(raw string) (Version, bool) {
	switch Version(raw) {
	case V04, V05, V06:
		return Version(raw), true
	default:
		return "", false
	}
}

const (
	// ExportInvoke is the guest export name every ABI version exposes
	// for operation invocation.
	ExportInvoke = "invoke"
	// ExportDescribe is the guest export name the 0.6 ABI additionally
	// requires for canonical-CBOR self-description.
	ExportDescribe = "component-descriptor_describe"
	// ExportAlloc is the guest's canonical-ABI-style allocator, used by
	// the host to place call arguments into guest linear memory.
	ExportAlloc = "cabi_realloc"
	// ExportMemory is the name wazero host code looks up to read/write
	// guest linear memory directly.
	ExportMemory = "memory"
)
