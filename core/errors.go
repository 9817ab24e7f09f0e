package core

import "github.com/pkg/errors"

// ErrorKind classifies domain errors that are surfaced to API clients as-is.
type ErrorKind uint8

const (
	KindUnexpected ErrorKind = iota
	KindNotFound
	KindConflict
	KindInvalidCredentials
	KindInvalidToken
	KindForbidden
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindInvalidToken:
		return "invalid token"
	case KindForbidden:
		return "forbidden"
	case KindInvalid:
		return "invalid"
	default:
		return "unexpected"
	}
}

// Error is a domain error. Packages declare them as sentinels and compare with errors.Cause.
type Error struct {
	Kind    ErrorKind
	Message string
}

// ErrForbidden is returned when the caller may not act on the requested resource.
var ErrForbidden = NewError(KindForbidden, "Forbidden")

func NewError(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func (err *Error) Error() string {
	return err.Message
}

// KindOf returns the ErrorKind of err, or KindUnexpected when err is not a domain error.
func KindOf(err error) ErrorKind {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Kind
	}
	return KindUnexpected
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
