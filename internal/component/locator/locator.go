// Package locator parses and canonicalizes component artifact locators:
// fs paths, file:// URLs, http(s), and the reserved oci/warg schemes.
package locator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/compruntime/host/internal/component/comperr"
	"golang.org/x/text/unicode/norm"
)

// Scheme tags the variant of a Locator.
type Scheme string

const (
	SchemeFs    Scheme = "fs"
	SchemeHttp  Scheme = "http"
	SchemeHttps Scheme = "https"
	SchemeOci   Scheme = "oci"
	SchemeWarg  Scheme = "warg"
)

// Locator is the tagged variant over the supported artifact reference
// forms. Two locators are equivalent iff String() matches byte-for-byte.
type Locator struct {
	Scheme Scheme
	// Path holds the filesystem path for SchemeFs.
	Path string
	// Ref holds the opaque reference for Http/Https/Oci/Warg (the URL or
	// registry reference string, scheme stripped).
	Ref string
}

// Parse converts a locator string into its tagged form. Bare paths and
// `fs://` map to SchemeFs; `file://` URLs are converted to a path via
// percent-decoding.
func Parse(raw string) (Locator, error) {
	if raw == "" {
		return Locator{}, comperr.InvalidLocator("empty locator")
	}

	scheme, rest, hasScheme := strings.Cut(raw, "://")
	if !hasScheme {
		return Locator{Scheme: SchemeFs, Path: raw}, nil
	}

	switch strings.ToLower(scheme) {
	case "fs":
		return Locator{Scheme: SchemeFs, Path: rest}, nil
	case "file":
		path, err := decodeFileURL(raw)
		if err != nil {
			return Locator{}, err
		}
		return Locator{Scheme: SchemeFs, Path: path}, nil
	case "http":
		return Locator{Scheme: SchemeHttp, Ref: rest}, nil
	case "https":
		return Locator{Scheme: SchemeHttps, Ref: rest}, nil
	case "oci":
		return Locator{Scheme: SchemeOci, Ref: rest}, nil
	case "warg":
		return Locator{Scheme: SchemeWarg, Ref: rest}, nil
	default:
		return Locator{}, comperr.UnsupportedScheme(scheme)
	}
}

// decodeFileURL applies the standard file-URL-to-path conversion:
// percent-decode, then concatenate host (if any) and path.
func decodeFileURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", comperr.InvalidLocator("invalid file:// url: %v", err)
	}
	decodedPath, err := url.PathUnescape(u.Path)
	if err != nil {
		return "", comperr.InvalidLocator("invalid percent-encoding in file:// url: %v", err)
	}
	// NFC-normalize so locators that differ only by Unicode decomposition
	// still canonicalize to the same cache key.
	decodedPath = norm.NFC.String(decodedPath)
	if u.Host != "" && u.Host != "localhost" {
		return u.Host + decodedPath, nil
	}
	return decodedPath, nil
}

// String renders the canonical form of the locator. This is the form
// used for locator-cache hashing and for locator equality.
func (l Locator) String() string {
	switch l.Scheme {
	case SchemeFs:
		return l.Path
	case SchemeHttp:
		return fmt.Sprintf("http://%s", l.Ref)
	case SchemeHttps:
		return fmt.Sprintf("https://%s", l.Ref)
	case SchemeOci:
		return fmt.Sprintf("oci://%s", l.Ref)
	case SchemeWarg:
		return fmt.Sprintf("warg://%s", l.Ref)
	default:
		return ""
	}
}

// Equal reports whether two locators have an identical canonical form.
func (l Locator) Equal(other Locator) bool {
	return l.String() == other.String()
}
