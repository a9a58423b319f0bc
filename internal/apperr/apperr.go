// Package apperr defines the error taxonomy shared by the conversation store,
// the live delivery channel and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and transport decisions
type Kind uint8

const (
	// KindUnknown is for unclassified errors
	KindUnknown Kind = iota

	// KindUnauthorized covers bad or missing API keys and sessions, and
	// threads not owned by the caller
	KindUnauthorized

	// KindValidation covers user-correctable input problems
	KindValidation

	// KindNotFound covers missing threads and replies
	KindNotFound

	// KindTransientIO covers storage and network hiccups; the only retryable kind
	KindTransientIO

	// KindNotificationDelivery covers outbound email failures; never surfaced to callers
	KindNotificationDelivery
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindTransientIO:
		return "transient_io"
	case KindNotificationDelivery:
		return "notification_delivery_failure"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire name back to its kind
func ParseKind(name string) Kind {
	for _, k := range []Kind{KindUnauthorized, KindValidation, KindNotFound, KindTransientIO, KindNotificationDelivery} {
		if k.String() == name {
			return k
		}
	}
	return KindUnknown
}

// Error is the structured error type carried through the service
type Error struct {
	kind  Kind
	msg   string
	field string
	orig  error
}

// New creates an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: msg, orig: err}
}

// Validation creates a validation error for a single field
func Validation(field, msg string) *Error {
	return &Error{kind: KindValidation, msg: msg, field: field}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error { return e.orig }

// Kind returns the error kind
func (e *Error) Kind() Kind { return e.kind }

// Message returns the caller-facing message without the wrapped cause
func (e *Error) Message() string { return e.msg }

// Field returns the offending field for validation errors
func (e *Error) Field() string { return e.field }

// As finds the first *Error in the chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether a bounded retry may succeed
func IsRetryable(err error) bool {
	return Is(err, KindTransientIO)
}

// HTTPStatus maps a kind to an HTTP status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrUnauthorized is the shared terminal authorization failure
var ErrUnauthorized = New(KindUnauthorized, "unauthorized")
