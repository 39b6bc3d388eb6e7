package store

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/compruntime/host/internal/component/comperr"
	"github.com/compruntime/host/internal/component/locator"
)

// fetchBytes resolves the raw bytes for a locator's scheme. oci and warg
// are reserved: parsing succeeds elsewhere, but fetching always fails
// here with UnsupportedScheme until a registry backend is wired in.
func (s *Store) fetchBytes(ctx context.Context, loc locator.Locator) ([]byte, error) {
	switch loc.Scheme {
	case locator.SchemeFs:
		data, err := os.ReadFile(loc.Path)
		if err != nil {
			return nil, comperr.IO(err, "reading component artifact from %s", loc.Path)
		}
		return data, nil

	case locator.SchemeHttp, locator.SchemeHttps:
		return s.fetchHTTP(ctx, loc.String())

	case locator.SchemeOci, locator.SchemeWarg:
		return nil, comperr.UnsupportedScheme(string(loc.Scheme))

	default:
		return nil, comperr.UnsupportedScheme(string(loc.Scheme))
	}
}

func (s *Store) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, comperr.InvalidLocator("building request for %s: %v", url, err)
	}
	req.Header.Set("Accept", "application/wasm, application/octet-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, comperr.IO(err, "fetching component artifact from %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, comperr.IO(nil, "fetching component artifact from %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, comperr.IO(err, "reading component artifact body from %s", url)
	}
	return data, nil
}
