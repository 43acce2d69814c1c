package recorder

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Recorder matches exactly one of these
// with errors.Is.
var (
	// ErrIO covers file create, write, seek and close failures
	ErrIO = errors.New("i/o error")
	// ErrHW means the sample source failed to start or reported a fault
	ErrHW = errors.New("hardware error")
	// ErrFormatNotSupported means the requested format was rejected
	ErrFormatNotSupported = errors.New("format not supported")
	// ErrInvalidState means the operation is not allowed in the current state
	ErrInvalidState = errors.New("invalid state")
)

// Error is the concrete error returned by Recorder operations
type Error struct {
	Op   string
	Kind error
	Err  error
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of err, or nil if err is nil or not a recorder error
func KindOf(err error) error {
	for _, kind := range []error{ErrIO, ErrHW, ErrFormatNotSupported, ErrInvalidState} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// kindLabel is the metrics label for an error kind
func kindLabel(kind error) string {
	switch kind {
	case ErrIO:
		return "io"
	case ErrHW:
		return "hw"
	case ErrFormatNotSupported:
		return "format"
	case ErrInvalidState:
		return "state"
	default:
		return "none"
	}
}
