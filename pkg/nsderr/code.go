package nsderr

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// Code is a native engine error code.
//
// The numeric values of the engine-specific codes match the platform values
// they originate from (Android NsdManager, Apple NetService) so codes logged
// by a native peer can be fed straight into Map.
type Code int

// Android NsdManager failure codes.
const (
	CodeInternal      Code = 0
	CodeAlreadyActive Code = 3
	CodeMaxLimit      Code = 4
)

// Apple NetService error codes.
const (
	CodeUnknown                      Code = -72000
	CodeCollision                    Code = -72001
	CodeNotFound                     Code = -72002
	CodeActivityInProgress           Code = -72003
	CodeBadArgument                  Code = -72004
	CodeCancelled                    Code = -72005
	CodeInvalid                      Code = -72006
	CodeTimeout                      Code = -72007
	CodeMissingRequiredConfiguration Code = -72008

	// CodePortInUse is reported by publish when the port is already bound.
	CodePortInUse Code = 48
)

// Codes reported by the Go engines in this module.
const (
	CodePermissionDenied Code = 1001
	CodeUnsupported      Code = 1002
	CodeShutdown         Code = 1003
)

// CodedError attaches a native code to an error returned by an engine library.
type CodedError struct {
	Code Code
	Err  error
}

// WithCode wraps err with a native code.
func WithCode(code Code, err error) error {
	return &CodedError{Code: code, Err: err}
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return "native error"
	}
	return e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// Classify derives a native code from an error returned by an engine library.
// Errors that cannot be classified yield CodeInternal.
func Classify(err error) Code {
	if err == nil {
		return CodeInternal
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, syscall.EADDRINUSE):
		return CodePortInUse
	case errors.Is(err, os.ErrPermission):
		return CodePermissionDenied
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}

	return CodeInternal
}
