// Package verify implements the digest and signature policies applied to
// every artifact fetch.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/compruntime/host/internal/component/comperr"
)

// DigestAlgorithm enumerates supported digest algorithms. Only sha256 is
// implemented; the type exists so a second algorithm is additive.
type DigestAlgorithm string

const DigestAlgorithmSHA256 DigestAlgorithm = "sha256"

// DigestPolicy governs digest verification for a single fetch.
type DigestPolicy struct {
	Algorithm DigestAlgorithm
	Expected  *string // lowercase hex, optional
	Required  bool
}

// SignatureKind tags the SignaturePolicy variant.
type SignatureKind string

const (
	SignatureDisabled SignatureKind = "disabled"
	SignatureCosign   SignatureKind = "cosign"
)

// SignaturePolicy governs signature verification. Cosign is a reserved
// capability: Cosign{Required: true} always fails with
// SignatureNotImplemented regardless of the bytes presented, because no
// cosign verifier is wired into this host yet.
type SignaturePolicy struct {
	Kind     SignatureKind
	Required bool
}

func DisabledSignature() SignaturePolicy { return SignaturePolicy{Kind: SignatureDisabled} }

func CosignRequired() SignaturePolicy {
	return SignaturePolicy{Kind: SignatureCosign, Required: true}
}

func CosignOptional() SignaturePolicy {
	return SignaturePolicy{Kind: SignatureCosign, Required: false}
}

// VerificationPolicy bundles the digest and signature policy for a fetch.
type VerificationPolicy struct {
	Digest    DigestPolicy
	Signature SignaturePolicy
}

// VerifiedDigest records the digest that was checked.
type VerifiedDigest struct {
	Algorithm DigestAlgorithm
	Hex       string
}

// SignatureStatus tags what, if anything, happened to signature
// verification for a given fetch.
type SignatureStatus string

const SignatureSkipped SignatureStatus = "skipped"

// VerifiedSignature records the outcome of signature verification.
type VerifiedSignature struct {
	Status SignatureStatus
}

// Report is produced alongside every successful fetch.
type Report struct {
	Digest    *VerifiedDigest
	Signature *VerifiedSignature
}

// Sha256Hex computes the lowercase hex sha256 digest of b.
func Sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// equalDigest compares two hex digests case-insensitively.
func equalDigest(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Verify checks bytes against the policy and returns the verification
// report, or a VerificationError-kind CompError on failure. Digest
// mismatch is fatal and the caller must not cache the bytes.
func Verify(bytes []byte, policy VerificationPolicy) (*Report, error) {
	report := &Report{}

	if policy.Digest.Required || policy.Digest.Expected != nil {
		actual := Sha256Hex(bytes)
		if policy.Digest.Expected == nil {
			return nil, comperr.Verification("digest required but no expected digest was supplied (actual: %s)", actual)
		}
		if !equalDigest(actual, *policy.Digest.Expected) {
			return nil, comperr.Verification("digest mismatch: expected %s, actual %s", *policy.Digest.Expected, actual)
		}
		report.Digest = &VerifiedDigest{Algorithm: DigestAlgorithmSHA256, Hex: actual}
	}

	switch policy.Signature.Kind {
	case "", SignatureDisabled:
		// no-op
	case SignatureCosign:
		if policy.Signature.Required {
			// Reserved capability: unconditionally unimplemented.
			return nil, comperr.Verification("signature policy requires cosign verification, which is not implemented")
		}
		report.Signature = &VerifiedSignature{Status: SignatureSkipped}
	}

	return report, nil
}
