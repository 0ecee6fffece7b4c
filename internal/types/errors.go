package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for engine errors.
type ErrorCode string

// Validation error codes. These are terminal for the submitted bundle:
// the caller must fix the input and resubmit.
const (
	VALIDATION_FAILED     ErrorCode = "VALIDATION_FAILED"
	VALIDATION_BAD_FORMAT ErrorCode = "VALIDATION_BAD_FORMAT"
)

// Not-found error codes.
const (
	VERSION_NOT_FOUND ErrorCode = "VERSION_NOT_FOUND"
	ENTITY_NOT_FOUND  ErrorCode = "ENTITY_NOT_FOUND"
)

// Persistence error codes. An ingest that fails with one of these leaves the
// previous active version in effect; the replace is idempotent per version and
// safe to retry from outside.
const (
	ENTITY_STORE_FAILED      ErrorCode = "ENTITY_STORE_FAILED"
	ENTITY_STORE_UNAVAILABLE ErrorCode = "ENTITY_STORE_UNAVAILABLE"
	GRAPH_STORE_FAILED       ErrorCode = "GRAPH_STORE_FAILED"
	GRAPH_CONNECTION_FAILED  ErrorCode = "GRAPH_CONNECTION_FAILED"
	VERSION_STORE_FAILED     ErrorCode = "VERSION_STORE_FAILED"
)

// Upstream service error codes.
const (
	EMBEDDER_FAILED     ErrorCode = "EMBEDDER_FAILED"
	COMPLETION_FAILED   ErrorCode = "COMPLETION_FAILED"
	PROVIDER_NOT_FOUND  ErrorCode = "PROVIDER_NOT_FOUND"
	INVALID_CONFIG      ErrorCode = "INVALID_CONFIG"
	INVALID_QUERY       ErrorCode = "INVALID_QUERY"
	INGEST_INTERRUPTED  ErrorCode = "INGEST_INTERRUPTED"
	FILTER_COMPILE_FAIL ErrorCode = "FILTER_COMPILE_FAIL"
)

// Error is a structured error with a stable code, a human-readable message,
// and an optional cause. The code is the only part callers should branch on.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
// Format: "[CODE] message" or "[CODE] message: cause" if a cause exists.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two engine errors by code, so sentinel comparisons like
// errors.Is(err, types.NewError(types.VERSION_NOT_FOUND, "")) work.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewError creates a new non-retryable Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewRetryableError creates a new retryable Error. Use for transient failures
// (store unreachable, upstream timeout) that may succeed when retried.
func NewRetryableError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: true}
}

// WrapError creates a non-retryable Error wrapping an existing cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WrapRetryableError creates a retryable Error wrapping an existing cause.
func WrapRetryableError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: true, Cause: cause}
}

// CodeOf extracts the error code from err, or empty string if err is not an
// engine error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err carries a retryable engine error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
