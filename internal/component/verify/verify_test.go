package verify

import "testing"

func strPtr(s string) *string { return &s }

func TestVerifyDigestMatch(t *testing.T) {
	data := []byte("hello world")
	digest := Sha256Hex(data)
	report, err := Verify(data, VerificationPolicy{
		Digest:    DigestPolicy{Algorithm: DigestAlgorithmSHA256, Expected: strPtr(digest), Required: true},
		Signature: DisabledSignature(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Digest == nil || report.Digest.Hex != digest {
		t.Fatalf("expected digest report, got %+v", report)
	}
}

func TestVerifyDigestMismatch(t *testing.T) {
	data := []byte("hello world")
	_, err := Verify(data, VerificationPolicy{
		Digest:    DigestPolicy{Algorithm: DigestAlgorithmSHA256, Expected: strPtr("deadbeef"), Required: true},
		Signature: DisabledSignature(),
	})
	if err == nil {
		t.Fatal("expected digest mismatch error")
	}
}

func TestVerifyDigestCaseInsensitive(t *testing.T) {
	data := []byte("hello world")
	digest := Sha256Hex(data)
	upper := ""
	for _, r := range digest {
		upper += string(r - 32*boolToInt(r >= 'a' && r <= 'z'))
	}
	_, err := Verify(data, VerificationPolicy{
		Digest:    DigestPolicy{Algorithm: DigestAlgorithmSHA256, Expected: strPtr(upper), Required: true},
		Signature: DisabledSignature(),
	})
	if err != nil {
		t.Fatalf("expected case-insensitive match, got error: %v", err)
	}
}

func boolToInt(b bool) rune {
	if b {
		return 1
	}
	return 0
}

func TestVerifyCosignRequiredAlwaysFails(t *testing.T) {
	_, err := Verify([]byte("anything"), VerificationPolicy{
		Digest:    DigestPolicy{Algorithm: DigestAlgorithmSHA256},
		Signature: CosignRequired(),
	})
	if err == nil {
		t.Fatal("expected cosign-required verification to fail as unimplemented")
	}
}

func TestVerifyCosignOptionalSkips(t *testing.T) {
	report, err := Verify([]byte("anything"), VerificationPolicy{
		Digest:    DigestPolicy{Algorithm: DigestAlgorithmSHA256},
		Signature: CosignOptional(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Signature == nil || report.Signature.Status != SignatureSkipped {
		t.Fatalf("expected skipped signature status, got %+v", report.Signature)
	}
}
