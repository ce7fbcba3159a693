// Package dcerr defines the typed error kinds the core raises.
package dcerr

import "fmt"

// Kind enumerates the expected-failure categories the core distinguishes.
type Kind int

const (
	Unknown Kind = iota
	FileNotAvailable
	FileAccessDenied
	HashError
	BadProtocolState
	TlsRequired
	ProtocolUnsupported
	HBRIValidationFailed
	RefreshRejected
)

func (k Kind) String() string {
	switch k {
	case FileNotAvailable:
		return "FileNotAvailable"
	case FileAccessDenied:
		return "FileAccessDenied"
	case HashError:
		return "HashError"
	case BadProtocolState:
		return "BadProtocolState"
	case TlsRequired:
		return "TlsRequired"
	case ProtocolUnsupported:
		return "ProtocolUnsupported"
	case HBRIValidationFailed:
		return "HBRIValidationFailed"
	case RefreshRejected:
		return "RefreshRejected"
	default:
		return "Unknown"
	}
}

// Error is a typed error carrying a Kind, the failing operation, and an
// optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap constructs an *Error wrapping err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
