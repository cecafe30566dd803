package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies control-plane failures so callers can branch on them
type ErrorKind string

const (
	ErrProvisioning     ErrorKind = "provisioning"
	ErrQuery            ErrorKind = "query"
	ErrQueueTransport   ErrorKind = "queue_transport"
	ErrAcknowledgment   ErrorKind = "acknowledgment"
	ErrUnsupportedState ErrorKind = "unsupported_state"
	ErrInvalidSlot      ErrorKind = "invalid_slot"
	ErrObjectStore      ErrorKind = "object_store"
)

// Error is a failure tagged with its kind and the operation that produced it
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation name
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string
func Errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
