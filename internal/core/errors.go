package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for callers that map errors onto transport
// responses. The message on an Error is always safe to show externally.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindProcessing ErrorKind = "processing"
	KindExpired    ErrorKind = "expired_resource"
)

// Error is a classified domain error. Err carries the underlying cause for
// logs; Message is the sanitized text for API responses.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed or missing request option.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown dataset, import or temp file.
func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a write that raced an in-flight job on the same
// import.
func ConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// ExpiredResourceError reports a temp upload that the sweeper has already
// removed.
func ExpiredResourceError(format string, args ...any) *Error {
	return &Error{Kind: KindExpired, Message: fmt.Sprintf(format, args...)}
}

// ProcessingError reports a failure while decoding or normalizing a file,
// wrapping the parser's cause.
func ProcessingError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindProcessing, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed. It returns
// an empty kind for errors outside the domain vocabulary (treated as
// internal by the transport layer).
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// PublicMessage returns the sanitized message for err, or a generic fallback
// when err is not a domain error.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
