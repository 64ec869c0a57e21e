package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a business failure. Every rejected request maps to exactly
// one kind; handlers translate kinds to HTTP statuses.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindUnauthorized     Kind = "unauthorized"
	KindInvalidState     Kind = "invalid_state"
	KindInvalidToken     Kind = "invalid_token"
	KindTokenExpired     Kind = "token_expired"
	KindTooFar           Kind = "too_far"
	KindNotAMember       Kind = "not_a_member"
	KindDuplicateCheckIn Kind = "duplicate_check_in"
	KindConflict         Kind = "conflict"
	KindInternal         Kind = "internal"
)

// Error is a tagged business error: a kind, a human message, and optional
// structured details for the client (e.g. geofence distances).
type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetails attaches a structured detail payload.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Wrap tags an underlying error, keeping it reachable via errors.Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Internal wraps an infrastructure failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: cause}
}

// KindOf extracts the kind from err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
