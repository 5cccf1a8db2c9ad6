// Package errors defines unified error types for reasoning and cache operations.
// Every failure surfaced by a public operation is mapped to one of these types.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error represents a standardized reasoncache error.
// It carries enough information for logging, HTTP rendering and errors.Is matching.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Type.
// This lets callers match on the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// HTTPStatusCode returns the HTTP status code matching the error type.
func (e *Error) HTTPStatusCode() int {
	switch e.Type {
	case TypeInvalidLayer, TypeInvalidArgument, TypeUnsupportedStrategy, TypeDepthExceeded:
		return http.StatusBadRequest
	case TypeUnauthenticated:
		return http.StatusUnauthorized
	case TypeUnauthorized:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeNotInitialized, TypeDisposed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error types.
const (
	TypeInvalidConfig       = "invalid_config"
	TypeInvalidLayer        = "invalid_layer"
	TypeInvalidArgument     = "invalid_argument"
	TypeUnsupportedStrategy = "unsupported_strategy"
	TypeDepthExceeded       = "depth_exceeded"
	TypeNotInitialized      = "not_initialized"
	TypeDisposed            = "disposed"
	TypeUnauthenticated     = "unauthenticated"
	TypeUnauthorized        = "unauthorized"
	TypeNotFound            = "not_found"
	TypeInternalError       = "internal_error"
)

// Sentinels for errors.Is matching. Only Type is compared.
var (
	ErrInvalidConfig       = &Error{Type: TypeInvalidConfig}
	ErrInvalidLayer        = &Error{Type: TypeInvalidLayer}
	ErrInvalidArgument     = &Error{Type: TypeInvalidArgument}
	ErrUnsupportedStrategy = &Error{Type: TypeUnsupportedStrategy}
	ErrDepthExceeded       = &Error{Type: TypeDepthExceeded}
	ErrNotInitialized      = &Error{Type: TypeNotInitialized}
	ErrDisposed            = &Error{Type: TypeDisposed}
	ErrUnauthenticated     = &Error{Type: TypeUnauthenticated}
	ErrUnauthorized        = &Error{Type: TypeUnauthorized}
	ErrNotFound            = &Error{Type: TypeNotFound}
)

// NewInvalidConfigError creates a configuration error. These are fatal at construction.
func NewInvalidConfigError(format string, args ...any) *Error {
	return &Error{Type: TypeInvalidConfig, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidLayerError creates an error for a layer that is not enabled.
func NewInvalidLayerError(layer string) *Error {
	return &Error{
		Type:    TypeInvalidLayer,
		Message: fmt.Sprintf("layer %q is not available", layer),
	}
}

// NewInvalidArgumentError creates an input validation error.
func NewInvalidArgumentError(format string, args ...any) *Error {
	return &Error{Type: TypeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NewUnsupportedStrategyError creates an error for an unknown or disabled strategy.
func NewUnsupportedStrategyError(strategy string) *Error {
	return &Error{
		Type:    TypeUnsupportedStrategy,
		Message: fmt.Sprintf("reasoning strategy %q is not supported", strategy),
	}
}

// NewDepthExceededError creates an error for a depth above the configured maximum.
func NewDepthExceededError(depth, max int) *Error {
	return &Error{
		Type:    TypeDepthExceeded,
		Message: fmt.Sprintf("reasoning depth %d exceeds maximum %d", depth, max),
	}
}

// NewNotInitializedError creates an error for use before initialization.
func NewNotInitializedError(component string) *Error {
	return &Error{
		Type:    TypeNotInitialized,
		Message: fmt.Sprintf("%s is not initialized", component),
	}
}

// NewDisposedError creates an error for use after disposal.
func NewDisposedError(component string) *Error {
	return &Error{
		Type:    TypeDisposed,
		Message: fmt.Sprintf("%s has been disposed", component),
	}
}

// NewUnauthenticatedError creates an error for missing or invalid credentials.
func NewUnauthenticatedError(reason string) *Error {
	return &Error{Type: TypeUnauthenticated, Message: reason}
}

// NewUnauthorizedError creates an access control error.
func NewUnauthorizedError(principal, operation string) *Error {
	return &Error{
		Type:    TypeUnauthorized,
		Message: fmt.Sprintf("principal %q is not allowed to %s", principal, operation),
	}
}

// NewNotFoundError creates a lookup error for the HTTP and MCP surfaces.
// Internal lookups return nil instead.
func NewNotFoundError(what, id string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: fmt.Sprintf("%s %q not found", what, id),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternalError, Message: message, Err: cause}
}

// Wrap attaches the public operation name to err.
// A typed *Error keeps its Type; anything else becomes an internal error.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.Op != "" {
			return e
		}
		cp := *e
		cp.Op = op
		return &cp
	}
	return &Error{Type: TypeInternalError, Message: "unexpected failure", Op: op, Err: err}
}

// Is reports whether any error in err's chain matches target.
// It lets callers that import this package as "errors" avoid a second import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// TypeOf returns the Type of err, or TypeInternalError for foreign errors.
func TypeOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeInternalError
}

// IsValidation reports whether err is a per-call validation failure.
// Validation failures are never cached and never retried.
func IsValidation(err error) bool {
	switch TypeOf(err) {
	case TypeInvalidLayer, TypeInvalidArgument, TypeUnsupportedStrategy, TypeDepthExceeded:
		return true
	default:
		return false
	}
}
