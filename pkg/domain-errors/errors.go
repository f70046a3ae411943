// Package domainerrors models domain failures as a closed set of error codes.
//
// Services return these instead of open-ended error hierarchies so callers
// (handlers, middleware) can exhaustively map each kind to a response.
// Infrastructure layers return pkg/platform/sentinel errors; services
// translate them into coded errors at their boundary.
//
// Conventionally imported as dErrors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies one member of the closed failure taxonomy.
type Code string

const (
	// CodeValidation: the request payload failed domain validation.
	CodeValidation Code = "validation"
	// CodeBadRequest: the request was malformed at the transport level.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound: the referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict: the operation lost against concurrent state.
	CodeConflict Code = "conflict"
	// CodeUnavailable: a transient condition persisted past the retry budget;
	// the caller may retry later.
	CodeUnavailable Code = "unavailable"
	// CodeTimeout: the operation exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeInvariantViolation: a domain invariant would be broken.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal: unclassified failure; details stay server-side.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. The wrapped cause, if any, is preserved for
// errors.Is/As but never surfaced to clients.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message from err, empty for uncoded
// errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
