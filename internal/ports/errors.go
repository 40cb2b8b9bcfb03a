package ports

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	}
	return "infrastructure"
}

// Error is the domain error carried from services to handlers.
// Code is a stable machine-readable identifier; Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Blocking marks a configuration error caused by current system state
	// rather than by the request itself.
	Blocking bool
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Unauthenticated(code, msg string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: msg}
}

func Forbidden(code, msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// Misconfigured reports invalid setup supplied by the request (sender department missing).
func Misconfigured(code, msg string) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Message: msg}
}

// Unresolvable reports that the system cannot proceed in its current state (no approver exists).
func Unresolvable(code, msg string) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Message: msg, Blocking: true}
}

// Infra wraps an unexpected storage or runtime failure.
func Infra(op string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Code: "internal_error", Message: op, Err: err}
}

// KindOf returns the kind of err; errors outside the taxonomy are infrastructure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// AsError extracts the domain error, wrapping foreign errors as infrastructure.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Infra("internal error", err)
}

// IsNotFound reports whether err is a NotFound domain error.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }
