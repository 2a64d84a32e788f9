// Package apperr defines the error taxonomy shared by the studio services.
// Every failure surfaced to a caller resolves to exactly one Kind, which the
// HTTP layer maps to a status code.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindTransient    Kind = "transient"
	KindNonRetryable Kind = "non_retryable"
	KindInternal     Kind = "internal"
)

// Error is a classified error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// New creates an Error. Package-level sentinels are built with New so that
// errors.Is works on wrapped values.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorKind implements Kinded.
func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// Kinded is implemented by adapter errors that classify themselves
// (backend HTTP errors, media tool failures).
type Kinded interface {
	error
	ErrorKind() Kind
}

// Validation returns a validation failure with a formatted message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: "VALIDATION", Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found failure with a formatted message.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a conflict failure with a formatted message.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Code: "CONFLICT", Message: fmt.Sprintf(format, args...)}
}

// KindOf resolves the Kind of any error chain. Context deadlines and network
// errors are transient; anything unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindInternal
}

// CodeOf returns the machine-readable code for err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	switch KindOf(err) {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION"
	case KindConflict:
		return "CONFLICT"
	case KindTransient:
		return "UNAVAILABLE"
	case KindNonRetryable:
		return "BACKEND_REJECTED"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// HTTPStatus maps a Kind to the status code returned by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindNonRetryable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
