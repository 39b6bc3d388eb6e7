// Package runtimeapi renders the component host's internal CompError
// taxonomy as RFC 7807 Problem Details over HTTP, the way the rest of
// this codebase's API error layer does.
package runtimeapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/compruntime/host/internal/component/comperr"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	// Kind carries the CompError bucket so clients can branch on it
	// without parsing Detail.
	Kind string `json:"kind,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// statusForKind maps a comperr.Kind to the HTTP status that best fits
// it, per the error-handling design's classification.
func statusForKind(kind comperr.Kind) (int, string) {
	switch kind {
	case comperr.KindInvalidLocator, comperr.KindSchemaValidation, comperr.KindSecretNotDeclared, comperr.KindManifest:
		return http.StatusBadRequest, "Bad Request"
	case comperr.KindUnsupportedScheme:
		return http.StatusUnprocessableEntity, "Unsupported Scheme"
	case comperr.KindOperationNotFound, comperr.KindBindingNotFound:
		return http.StatusNotFound, "Not Found"
	case comperr.KindHostFeatureDenied:
		return http.StatusForbidden, "Forbidden"
	case comperr.KindVerification:
		return http.StatusUnprocessableEntity, "Content Verification Failed"
	case comperr.KindSecretResolution:
		return http.StatusBadGateway, "Secret Resolution Failed"
	case comperr.KindTimeout:
		return http.StatusGatewayTimeout, "Invocation Timed Out"
	case comperr.KindMemoryLimit:
		return http.StatusInsufficientStorage, "Memory Limit Exceeded"
	case comperr.KindRuntime, comperr.KindEngine:
		return http.StatusBadGateway, "Guest Runtime Error"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// WriteCompError renders err as a Problem Detail, translating a
// *comperr.CompError into its matching HTTP status and falling back to
// 500 for any other error type (never exposing its raw text, matching
// the teacher's "unexpected errors are logged, not surfaced" rule).
func WriteCompError(w http.ResponseWriter, r *http.Request, err error) {
	ce, ok := comperr.As(err)
	if !ok {
		slog.Error("unclassified internal error", "error", err)
		writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred.", "")
		return
	}
	status, title := statusForKind(ce.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("component error", "kind", string(ce.Kind), "error", err)
	} else {
		slog.Warn("component error", "kind", string(ce.Kind), "error", err)
	}
	writeProblem(w, r, status, title, ce.Message, string(ce.Kind))
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail, kind string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://compruntime.internal/errors/%s", kind),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
		Kind:     kind,
	}
	if kind == "" {
		problem.Type = fmt.Sprintf("https://compruntime.internal/errors/%d", status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response for request validation
// failures outside the CompError taxonomy (malformed JSON bodies,
// missing path parameters).
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, "Bad Request", detail, "")
}
