package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable error classification returned on the API surface.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindForbidden     ErrorKind = "FORBIDDEN"
	KindConflict      ErrorKind = "CONFLICT"
	KindInvalid       ErrorKind = "INVALID"
	KindLimitExceeded ErrorKind = "LIMIT_EXCEEDED"
	KindInternal      ErrorKind = "INTERNAL"
)

// Error carries a stable kind alongside a human-readable message.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NewError creates a classified error.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, or KindInternal for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
