// Package status defines the error kinds shared across the runtime.
//
// Recoverable conditions (bad paths, malformed model files, exhausted device
// memory) are reported as *Error values and matched by kind with Is. Broken
// internal contracts, such as requesting a registry buffer that init never
// populated, are not errors at all; the owning component panics.
package status

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindPathNotValid
	KindModelParseError
	KindInternalError
	KindKeyAlreadyExists
	KindOutOfMemory
	KindTypeMismatch
	KindUnallocated
)

func (k Kind) String() string {
	switch k {
	case KindPathNotValid:
		return "path not valid"
	case KindModelParseError:
		return "model parse error"
	case KindInternalError:
		return "internal error"
	case KindKeyAlreadyExists:
		return "key already exists"
	case KindOutOfMemory:
		return "out of memory"
	case KindTypeMismatch:
		return "type mismatch"
	case KindUnallocated:
		return "unallocated"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Error carries an error kind plus a human readable message. Wrapping with
// fmt.Errorf("...: %w", err) preserves the kind, so context can be added as
// an error propagates without replacing it.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Msg
}

// Is reports kind equality, which lets errors.Is match any error of a given
// kind regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

func Newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func PathNotValid(format string, args ...any) *Error {
	return Newf(KindPathNotValid, format, args...)
}

func ModelParseError(format string, args ...any) *Error {
	return Newf(KindModelParseError, format, args...)
}

func InternalError(format string, args ...any) *Error {
	return Newf(KindInternalError, format, args...)
}

func KeyAlreadyExists(format string, args ...any) *Error {
	return Newf(KindKeyAlreadyExists, format, args...)
}

func OutOfMemory(format string, args ...any) *Error {
	return Newf(KindOutOfMemory, format, args...)
}

func TypeMismatch(format string, args ...any) *Error {
	return Newf(KindTypeMismatch, format, args...)
}

func Unallocated(format string, args ...any) *Error {
	return Newf(KindUnallocated, format, args...)
}

// Is reports whether err, or any error it wraps, carries kind k.
func Is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// KindOf extracts the kind from err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
