package genesisdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// Done is returned by iterators when iteration is complete.
	// Check with errors.Is(err, genesisdb.Done).
	Done = errors.New("genesisdb: no more events in iterator")

	// ErrTransport indicates a connection-level failure (refused,
	// reset, timeout). Transport failures are safe to retry.
	ErrTransport = errors.New("genesisdb: transport failure")

	// ErrEmptyCommit indicates a commit with no events. The request is
	// rejected client-side and never sent over the wire.
	ErrEmptyCommit = errors.New("genesisdb: commit requires at least one event")

	// ErrIteratorClosed indicates the iterator has already been closed.
	ErrIteratorClosed = errors.New("genesisdb: iterator already closed")

	// ErrUnauthorized indicates the auth token was rejected (401/403).
	ErrUnauthorized = errors.New("genesisdb: unauthorized")

	// ErrNotFound indicates an unknown resource or endpoint (404).
	ErrNotFound = errors.New("genesisdb: not found")
)

// ConfigError indicates missing required configuration. It is returned
// before any network activity takes place.
type ConfigError struct {
	// Field is the missing configuration field or environment variable.
	Field string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("genesisdb: missing required configuration: %s", e.Field)
}

// APIError wraps a non-success HTTP response with context about the
// failed operation.
type APIError struct {
	// Op is the operation that failed: "commit", "stream-events",
	// "observe-events", "query", "erase", "ping", "audit".
	Op string

	// Path is the request path.
	Path string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("genesisdb: %s %s failed with status %d: %v", e.Op, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("genesisdb: %s %s failed with status %d", e.Op, e.Path, e.StatusCode)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError wraps a connection-level failure. It satisfies
// errors.Is(err, ErrTransport).
type TransportError struct {
	// Op is the operation that failed.
	Op string

	// Err is the underlying network error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("genesisdb: %s: transport failure: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransport so callers can classify without the type.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// DecodeError indicates malformed wire data. It is fatal for the
// connection it occurred on and is never retried automatically.
type DecodeError struct {
	// Err is the underlying parse error.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("genesisdb: malformed event record: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PreconditionError indicates the store rejected a commit because a
// precondition evaluated false. The whole batch was rejected; no
// partial commit occurred. Never retried automatically.
type PreconditionError struct {
	// Failed is the type of the precondition that failed.
	Failed string

	// Detail is the server-supplied explanation.
	Detail string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("genesisdb: precondition %s failed: %s", e.Failed, e.Detail)
	}
	return fmt.Sprintf("genesisdb: precondition %s failed", e.Failed)
}

// newAPIError creates an APIError with a sentinel mapped from the status.
func newAPIError(op, path string, statusCode int) *APIError {
	return &APIError{
		Op:         op,
		Path:       path,
		StatusCode: statusCode,
		Err:        errorFromStatus(statusCode),
	}
}

// errorFromStatus maps HTTP status codes to sentinel errors.
func errorFromStatus(statusCode int) error {
	switch statusCode {
	case 401, 403:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	default:
		return nil
	}
}
