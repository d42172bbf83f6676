package nsderr

import (
	"errors"
	"fmt"
)

// Cause is the protocol-level error cause.
type Cause uint8

const (
	// InternalError is the catch-all cause.
	InternalError Cause = iota

	// IllegalArgument indicates malformed or missing request fields.
	IllegalArgument

	// AlreadyActive indicates the operation is already running.
	AlreadyActive

	// MaxLimit indicates the engine reached its limit of outstanding requests.
	MaxLimit

	// SecurityIssue indicates a missing platform capability.
	SecurityIssue
)

// String returns the wire code of the cause.
func (c Cause) String() string {
	switch c {
	case IllegalArgument:
		return "illegalArgument"
	case AlreadyActive:
		return "alreadyActive"
	case MaxLimit:
		return "maxLimit"
	case SecurityIssue:
		return "securityIssue"
	default:
		return "internalError"
	}
}

// ParseCause converts a wire code back to a Cause.
// Unknown codes yield InternalError.
func ParseCause(code string) Cause {
	switch code {
	case "illegalArgument":
		return IllegalArgument
	case "alreadyActive":
		return AlreadyActive
	case "maxLimit":
		return MaxLimit
	case "securityIssue":
		return SecurityIssue
	default:
		return InternalError
	}
}

// Error is an error carrying a protocol cause.
type Error struct {
	Cause   Cause
	Message string
}

// New creates an Error.
func New(cause Cause, message string) *Error {
	return &Error{Cause: cause, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(cause Cause, format string, args ...any) *Error {
	return &Error{Cause: cause, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Cause)
}

// Is reports whether target is an *Error with the same cause.
// This lets callers write errors.Is(err, nsderr.New(nsderr.IllegalArgument, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Cause == e.Cause
}

// CauseOf returns the cause carried by err.
// Errors that do not carry a cause are internal errors.
func CauseOf(err error) Cause {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return InternalError
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
