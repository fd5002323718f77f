package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the transport edge. The set is closed;
// anything unclassified is Internal.
type Kind int

const (
	Internal Kind = iota
	ValidationFailed
	Unauthorized
	Forbidden
	NotFound
	Conflict
	PayloadTooLarge
	UnsupportedMedia
	RateLimited
	Unavailable
)

// Error carries a kind and a user-facing detail message. Wrapped causes
// stay internal and never reach responses.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.cause)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an error of the given kind
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates an error of the given kind with a formatted detail
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether the error chain contains the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailOf returns the user-facing message for an error chain. Internal
// errors collapse to a generic message so causes do not leak.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "Internal server error"
}

// HTTPStatus maps a kind to its response status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case ValidationFailed:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case UnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case RateLimited:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
