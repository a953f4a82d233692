// Package apperr defines the error taxonomy shared across component
// boundaries. Internal code wraps errors with fmt.Errorf("%w") as usual;
// at the edges (retrieval service, store, auth, HTTP layer) failures are
// classified into a small set of kinds with machine-readable codes so the
// API layer can map them to responses without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at a component boundary.
type Kind int

const (
	// KindUnknown is the zero value: the error carries no classification.
	KindUnknown Kind = iota

	// KindInvalidQuery means the query text itself is unusable (empty after
	// trimming).
	KindInvalidQuery

	// KindInvalidParameter means a caller-supplied parameter is out of range.
	KindInvalidParameter

	// KindUnauthorized means the request failed authentication.
	KindUnauthorized

	// KindNotFound means the referenced entity does not exist.
	KindNotFound

	// KindTimeout means a dependency did not answer within its deadline,
	// after any retries.
	KindTimeout

	// KindUnavailable means a dependency refused or failed the request in a
	// way retries could not fix.
	KindUnavailable

	// KindInternal is an unexpected fault in our own code.
	KindInternal
)

// String returns a stable lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidQuery:
		return "invalid_query"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Machine-readable error codes surfaced in API responses.
const (
	CodeEmptyQuery         = "EMPTY_QUERY"
	CodeQueryTooLong       = "QUERY_TOO_LONG"
	CodeSelectionTooLong   = "SELECTION_TOO_LONG"
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
)

// Error is a classified error. It always carries a Kind and a Code; Err is
// the underlying cause, if any.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error with no underlying cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf is New with Sprintf-style formatting of the message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err returns nil so call sites can wrap
// unconditionally.
func Wrap(err error, kind Kind, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the Code of the first *Error in err's chain, or
// CodeInternal when the error is unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}
