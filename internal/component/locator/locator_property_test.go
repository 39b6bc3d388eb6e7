//go:build property
// +build property

package locator_test

import (
	"testing"

	"github.com/compruntime/host/internal/component/locator"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestParseStringRoundTrip verifies parse(to_string(L)) == L for every
// reference-bearing scheme: the cache and the loader both key off
// Locator.String(), so a locator that doesn't survive this round trip
// would silently fragment the artifact cache.
func TestParseStringRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	schemes := []locator.Scheme{locator.SchemeHttp, locator.SchemeHttps, locator.SchemeOci, locator.SchemeWarg}

	properties.Property("parse(to_string(L)) == L for reference-bearing schemes", prop.ForAll(
		func(schemeIdx int, ref string) bool {
			if ref == "" {
				return true
			}
			scheme := schemes[schemeIdx%len(schemes)]
			original := locator.Locator{Scheme: scheme, Ref: ref}

			reparsed, err := locator.Parse(original.String())
			if err != nil {
				return false
			}
			return reparsed.Equal(original)
		},
		gen.IntRange(0, len(schemes)-1),
		gen.RegexMatch(`[a-zA-Z0-9/_.-]+`),
	))

	properties.TestingRun(t)
}

// TestParseFsPathRoundTrip verifies bare filesystem paths (no "://"
// separator) round trip through Parse/String unchanged.
func TestParseFsPathRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("parse(to_string(L)) == L for fs paths", prop.ForAll(
		func(path string) bool {
			if path == "" {
				return true
			}
			original := locator.Locator{Scheme: locator.SchemeFs, Path: path}
			reparsed, err := locator.Parse(original.String())
			if err != nil {
				return false
			}
			return reparsed.Equal(original)
		},
		gen.RegexMatch(`[a-zA-Z0-9/_.-]+`),
	))

	properties.TestingRun(t)
}
