package secret

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Every error returned by Service wraps exactly one of them,
// so callers can tell "not found" from "backend unavailable" with errors.Is.
var (
	// ErrNotFound indicates no secret is stored at the path.
	ErrNotFound = errors.New("secret not found")

	// ErrInvalidPath indicates the path failed validation.
	ErrInvalidPath = errors.New("invalid secret path")

	// ErrInvalidPayload indicates the payload is empty or not serializable.
	ErrInvalidPayload = errors.New("invalid secret payload")

	// ErrUnavailable indicates that neither backend initialized.
	ErrUnavailable = errors.New("no secret backend available")

	// ErrBackend indicates a failure inside the active backend.
	ErrBackend = errors.New("secret backend failure")
)

// Error describes a failed secret operation.
type Error struct {
	Op      string // store, get, delete, rotate, list
	Path    string
	Backend string
	Kind    error // one of the sentinel errors above
	Err     error // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("secret %s %q (backend=%s): %v", e.Op, e.Path, e.Backend, e.Kind)
	}
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("secret %s %q (backend=%s): %v", e.Op, e.Path, e.Backend, e.Err)
	}
	return fmt.Sprintf("secret %s %q (backend=%s): %v: %v", e.Op, e.Path, e.Backend, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// HTTPStatusCode returns the HTTP status code matching the error kind.
func (e *Error) HTTPStatusCode() int {
	return StatusCode(e.Kind)
}

// Type returns a stable machine-readable error type.
func (e *Error) Type() string {
	return TypeOf(e.Kind)
}

// StatusCode maps an error to an HTTP status code.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error types as constants for API responses.
const (
	TypeNotFound       = "not_found_error"
	TypeInvalidRequest = "invalid_request_error"
	TypeUnavailable    = "service_unavailable_error"
	TypeBackend        = "backend_error"
	TypeInternal       = "internal_error"
)

// TypeOf maps an error to a stable error type string.
func TypeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return TypeNotFound
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidPayload):
		return TypeInvalidRequest
	case errors.Is(err, ErrUnavailable):
		return TypeUnavailable
	case errors.Is(err, ErrBackend):
		return TypeBackend
	default:
		return TypeInternal
	}
}

// kindOf classifies a backend error. Backend errors that already wrap a
// sentinel keep it; anything else is a backend failure.
func kindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrInvalidPath, ErrInvalidPayload, ErrUnavailable, ErrBackend} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrBackend
}
