// Package apperr defines the error taxonomy shared by services and the
// API layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for response mapping.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
	KindInternal
)

// String returns the wire identifier for the kind.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindUpstream:
		return "UPSTREAM_FAILURE"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error carries a kind, a human-readable message, and optionally the
// upstream payload that triggered it.
type Error struct {
	Kind    Kind
	Message string
	Status  int   // upstream HTTP status, when relevant
	Payload any   // upstream response body, when relevant
	Err     error // wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrBadRequest   = &Error{Kind: KindBadRequest, Message: "bad request"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict     = &Error{Kind: KindConflict, Message: "conflict"}
	ErrUpstream     = &Error{Kind: KindUpstream, Message: "upstream failure"}
	ErrInternal     = &Error{Kind: KindInternal, Message: "internal error"}
)

// BadRequest returns a KindBadRequest error.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// Unauthorized returns a KindUnauthorized error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden returns a KindForbidden error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound returns a KindNotFound error with an optional upstream payload.
func NotFound(message string, payload ...any) *Error {
	e := &Error{Kind: KindNotFound, Message: message}
	if len(payload) > 0 {
		e.Payload = payload[0]
	}
	return e
}

// Upstream returns a KindUpstream error carrying the upstream status and
// payload so the caller can render it.
func Upstream(status int, message string, payload any) *Error {
	return &Error{Kind: KindUpstream, Message: message, Status: status, Payload: payload}
}

// Internal wraps an unexpected local fault.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf extracts the kind from err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
