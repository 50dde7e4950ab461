package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestration core.
type ErrorCode string

// Configuration error codes. These indicate deployment defects and are fatal
// at session-construction time; they must never reach a chat transcript.
const (
	ErrToolNotRegistered ErrorCode = "TOOL_NOT_REGISTERED"
	ErrMissingSecret     ErrorCode = "MISSING_SECRET"
	ErrInvalidConfig     ErrorCode = "INVALID_CONFIG"
)

// Recoverable capability error codes. These are relayed back to the calling
// agent as error-describing string results, never raised across the
// orchestration boundary.
const (
	ErrAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentNotSwitchable ErrorCode = "AGENT_NOT_SWITCHABLE"
	ErrSandboxUnavailable ErrorCode = "SANDBOX_UNAVAILABLE"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
)

// Transport error codes used by the HTTP layer.
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
)

// Infrastructure error codes.
const (
	ErrTraceStore    ErrorCode = "TRACE_STORE"
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Config     bool      `json:"config"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewConfigError creates a fatal configuration error. Configuration errors
// abort session construction instead of degrading silently.
func NewConfigError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Config: true}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsConfigError reports whether err is a fatal configuration error.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Config
}

// IsRetryable reports whether err may succeed on retry.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// CodeOf extracts the error code, or ErrInternalError for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternalError
}
