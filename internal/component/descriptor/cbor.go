package descriptor

import (
	"bytes"

	"github.com/compruntime/host/internal/component/comperr"
	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"
)

// selfDescribeTag is the three-byte CBOR self-describe tag (major type 6,
// tag 55799) a descriptor payload may be prefixed with.
var selfDescribeTag = []byte{0xd9, 0xd9, 0xf7}

var canonicalEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err) // static options; cannot fail
	}
	return mode
}()

// StripSelfDescribeTag removes the leading self-describe tag if present.
// Absent tag: no change. This is a left-inverse of PrependSelfDescribeTag.
func StripSelfDescribeTag(payload []byte) []byte {
	if bytes.HasPrefix(payload, selfDescribeTag) {
		return payload[len(selfDescribeTag):]
	}
	return payload
}

// PrependSelfDescribeTag adds the self-describe tag.
func PrependSelfDescribeTag(payload []byte) []byte {
	out := make([]byte, 0, len(selfDescribeTag)+len(payload))
	out = append(out, selfDescribeTag...)
	out = append(out, payload...)
	return out
}

// IsCanonical reports whether payload is already in canonical form by
// decoding then re-encoding it and comparing bytes.
func IsCanonical(payload []byte) (bool, error) {
	var v any
	if err := cbor.Unmarshal(payload, &v); err != nil {
		return false, comperr.Manifest("descriptor payload is not valid CBOR: %v", err)
	}
	reencoded, err := canonicalEncMode.Marshal(v)
	if err != nil {
		return false, comperr.Manifest("re-encoding descriptor payload: %v", err)
	}
	return bytes.Equal(payload, reencoded), nil
}

// Decode strips the optional self-describe tag and decodes the canonical
// CBOR document into a ComponentDescriptor. strict, when true, rejects
// non-canonical payloads (the loader's policy); when false, it only
// reports a warning via the returned bool (true = was canonical) without
// failing, matching the lenient policy of lower-level inspection tools.
func Decode(payload []byte, strict bool) (*ComponentDescriptor, bool, error) {
	stripped := StripSelfDescribeTag(payload)

	canonical, err := IsCanonical(stripped)
	if err != nil {
		return nil, false, err
	}
	if !canonical && strict {
		return nil, false, comperr.Manifest("descriptor payload is not in canonical CBOR form")
	}

	var d ComponentDescriptor
	if err := cbor.Unmarshal(stripped, &d); err != nil {
		return nil, canonical, comperr.Manifest("decoding component descriptor: %v", err)
	}
	return &d, canonical, nil
}

// EncodeCanonical encodes v as canonical CBOR.
func EncodeCanonical(v any) ([]byte, error) {
	data, err := canonicalEncMode.Marshal(v)
	if err != nil {
		return nil, comperr.Manifest("canonical CBOR encoding failed: %v", err)
	}
	return data, nil
}

// ComputeSchemaHash computes blake3(canonical_cbor(input) ∥
// canonical_cbor(output) ∥ canonical_cbor(config)) as lowercase hex,
// matching the glossary definition of "schema hash".
func ComputeSchemaHash(input, output *SchemaNode, configSchema any) (string, error) {
	inputBytes, err := EncodeCanonical(input)
	if err != nil {
		return "", err
	}
	outputBytes, err := EncodeCanonical(output)
	if err != nil {
		return "", err
	}
	configBytes, err := EncodeCanonical(configSchema)
	if err != nil {
		return "", err
	}

	h := blake3.New(32, nil)
	h.Write(inputBytes)
	h.Write(outputBytes)
	h.Write(configBytes)
	return bytesToHex(h.Sum(nil)), nil
}

// VerifySchemaHashes checks, for every operation in d, that its declared
// schema_hash matches the recomputed hash over its input/output and the
// descriptor's config_schema.
func VerifySchemaHashes(d *ComponentDescriptor) error {
	for _, op := range d.Operations {
		got, err := ComputeSchemaHash(op.Input, op.Output, d.ConfigSchema)
		if err != nil {
			return err
		}
		if got != op.SchemaHash {
			return comperr.Manifest("schema_hash mismatch for operation %q: declared %s, computed %s", op.Name, op.SchemaHash, got)
		}
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func bytesToHex(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
