// Package comperr defines the tagged error taxonomy shared across the
// artifact store, manifest validator, loader, binder, and invoker.
package comperr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a CompError into one of the taxonomy buckets from the
// error handling design. It is a bucket, not a string to be shown to a
// caller — Message carries the human-readable text.
type Kind string

const (
	KindInvalidLocator      Kind = "invalid_locator"
	KindUnsupportedScheme   Kind = "unsupported_scheme"
	KindIO                  Kind = "io"
	KindVerification        Kind = "verification_error"
	KindManifest            Kind = "manifest_error"
	KindSchemaValidation    Kind = "schema_validation"
	KindSecretNotDeclared   Kind = "secret_not_declared"
	KindSecretResolution    Kind = "secret_resolution"
	KindOperationNotFound   Kind = "operation_not_found"
	KindBindingNotFound     Kind = "binding_not_found"
	KindHostFeatureDenied   Kind = "host_feature_denied"
	KindRuntime             Kind = "runtime"
	KindTimeout             Kind = "timeout"
	KindMemoryLimit         Kind = "memory_limit"
	KindJSON                Kind = "json"
	KindEngine              Kind = "engine"
)

// CompError is the single error type returned across package boundaries
// in this module. Kind-specific detail lives in the optional fields;
// Unwrap exposes the wrapped cause where one exists.
type CompError struct {
	Kind    Kind
	Message string
	Cause   error

	// Secret resolution detail.
	SecretKey string

	// Runtime(code, message, retryable, backoff_ms?, details?) detail.
	Code       string
	Retryable  bool
	BackoffMS  *int
	Details    json.RawMessage

	// Timeout / MemoryLimit detail.
	TimeoutMS int
	LimitMB   int
}

func (e *CompError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CompError) Unwrap() error { return e.Cause }

func newErr(kind Kind, format string, args ...any) *CompError {
	return &CompError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidLocator(format string, args ...any) *CompError {
	return newErr(KindInvalidLocator, format, args...)
}

func UnsupportedScheme(scheme string) *CompError {
	return newErr(KindUnsupportedScheme, "unsupported locator scheme %q", scheme)
}

func IO(cause error, format string, args ...any) *CompError {
	e := newErr(KindIO, format, args...)
	e.Cause = cause
	return e
}

func Verification(format string, args ...any) *CompError {
	return newErr(KindVerification, format, args...)
}

func Manifest(format string, args ...any) *CompError {
	return newErr(KindManifest, format, args...)
}

// SchemaValidation concatenates every validator message into one error,
// matching the binder's "all reported errors are concatenated" rule.
func SchemaValidation(messages []string) *CompError {
	joined := ""
	for i, m := range messages {
		if i > 0 {
			joined += ", "
		}
		joined += m
	}
	return newErr(KindSchemaValidation, "%s", joined)
}

func SecretNotDeclared(key string) *CompError {
	e := newErr(KindSecretNotDeclared, "secret %q is not declared in the manifest", key)
	e.SecretKey = key
	return e
}

func SecretResolution(key string, cause error) *CompError {
	e := newErr(KindSecretResolution, "failed to resolve secret %q", key)
	e.SecretKey = key
	e.Cause = cause
	return e
}

func OperationNotFound(operation string) *CompError {
	return newErr(KindOperationNotFound, "operation %q is not exported by this component", operation)
}

func BindingNotFound(tenantKey string) *CompError {
	return newErr(KindBindingNotFound, "no binding for tenant key %q", tenantKey)
}

func HostFeatureDenied(name string) *CompError {
	return newErr(KindHostFeatureDenied, "host feature %q is disabled by policy", name)
}

func Runtime(code, message string, retryable bool, backoffMS *int, details json.RawMessage) *CompError {
	return &CompError{
		Kind:      KindRuntime,
		Message:   message,
		Code:      code,
		Retryable: retryable,
		BackoffMS: backoffMS,
		Details:   details,
	}
}

func Timeout(timeoutMS int) *CompError {
	e := newErr(KindTimeout, "invocation exceeded wall time budget of %dms", timeoutMS)
	e.TimeoutMS = timeoutMS
	return e
}

func MemoryLimit(limitMB int) *CompError {
	e := newErr(KindMemoryLimit, "guest memory growth refused above %dMB", limitMB)
	e.LimitMB = limitMB
	return e
}

func JSON(cause error) *CompError {
	e := newErr(KindJSON, "json error")
	e.Cause = cause
	return e
}

func Engine(cause error, format string, args ...any) *CompError {
	e := newErr(KindEngine, format, args...)
	e.Cause = cause
	return e
}

// As is a small convenience wrapper around errors.As for the common case
// of wanting a *CompError out of an arbitrary error chain.
func As(err error) (*CompError, bool) {
	var ce *CompError
	ok := errors.As(err, &ce)
	return ce, ok
}
