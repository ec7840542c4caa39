// Package domainerrors defines the domain error envelope shared by services
// and transports. Services create errors with a stable code; transports
// translate codes into HTTP statuses without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Codes are stable API surface; messages
// are diagnostic and may change.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_failed"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"

	// Workflow rule violations. Each one corresponds to a distinct check in
	// the transition engine so callers can tell them apart.
	CodeUnknownEvent  Code = "unknown_event"
	CodeIllegalState  Code = "illegal_state"
	CodeInvalidResult Code = "invalid_result"
)

// GatewayError carries a code plus a human-readable message. It wraps an
// underlying cause when created via Wrap.
type GatewayError struct {
	Code    Code
	Message string
	cause   error
}

func (e GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e GatewayError) Unwrap() error { return e.cause }

// New creates a GatewayError with the given code and message.
func New(code Code, message string) error {
	return GatewayError{Code: code, Message: message}
}

// Newf creates a GatewayError with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return GatewayError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is / errors.As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return GatewayError{Code: code, Message: message, cause: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var gw GatewayError
	if errors.As(err, &gw) {
		return gw.Code == code
	}
	return false
}

// HasCode is an alias for Is kept for call-site readability.
func HasCode(err error, code Code) bool { return Is(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in domain logic.
func CodeOf(err error) Code {
	var gw GatewayError
	if errors.As(err, &gw) {
		return gw.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to its transport status. The engine
// itself stays HTTP-agnostic; only handlers call this.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeUnknownEvent, CodeIllegalState, CodeInvalidResult:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
