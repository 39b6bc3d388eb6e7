package locator

import "testing"

func TestParseBarePath(t *testing.T) {
	l, err := Parse("/opt/components/echo.wasm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Scheme != SchemeFs || l.Path != "/opt/components/echo.wasm" {
		t.Fatalf("got %+v", l)
	}
}

func TestParseFsScheme(t *testing.T) {
	l, err := Parse("fs:///opt/components/echo.wasm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Scheme != SchemeFs || l.Path != "/opt/components/echo.wasm" {
		t.Fatalf("got %+v", l)
	}
}

func TestParseFileURL(t *testing.T) {
	l, err := Parse("file:///opt/components/echo%20v2.wasm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Scheme != SchemeFs || l.Path != "/opt/components/echo v2.wasm" {
		t.Fatalf("got %+v", l)
	}
}

func TestParseHTTPSchemes(t *testing.T) {
	for _, tc := range []struct {
		raw    string
		scheme Scheme
	}{
		{"http://example.com/c.wasm", SchemeHttp},
		{"https://example.com/c.wasm", SchemeHttps},
	} {
		l, err := Parse(tc.raw)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tc.raw, err)
		}
		if l.Scheme != tc.scheme {
			t.Fatalf("expected scheme %s, got %s", tc.scheme, l.Scheme)
		}
		if l.String() != tc.raw {
			t.Fatalf("round trip failed: %s != %s", l.String(), tc.raw)
		}
	}
}

func TestParseReservedSchemesRoundTrip(t *testing.T) {
	for _, raw := range []string{"oci://registry.example.com/comp:1.0", "warg://registry.example.com/ns/comp@1.0"} {
		l, err := Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", raw, err)
		}
		if l.String() != raw {
			t.Fatalf("round trip failed: %s != %s", l.String(), raw)
		}
	}
}

func TestParseUnsupportedScheme(t *testing.T) {
	_, err := Parse("ftp://example.com/c.wasm")
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("")
	if err == nil {
		t.Fatal("expected error for empty locator")
	}
}

func TestRoundTripBarePathEquivalence(t *testing.T) {
	a, _ := Parse("/opt/c.wasm")
	b, _ := Parse(a.String())
	if !a.Equal(b) {
		t.Fatalf("round trip not equal: %+v != %+v", a, b)
	}
}
