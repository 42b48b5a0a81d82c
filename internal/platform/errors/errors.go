// Package errors provides coded application errors shared by all layers.
// Handlers map codes to HTTP statuses; services attach codes close to the
// failure so callers can branch without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrCode identifies the class of failure.
type ErrCode string

const (
	ErrCodeInvalidInput ErrCode = "invalid_input"
	ErrCodeUnauthorized ErrCode = "unauthorized"
	ErrCodeNotFound     ErrCode = "not_found"
	ErrCodeConflict     ErrCode = "conflict"
	ErrCodeUnavailable  ErrCode = "unavailable"
	ErrCodeGone         ErrCode = "gone"
	ErrCodeInternal     ErrCode = "internal"
)

// Error is a coded application error, optionally wrapping a cause.
type Error struct {
	Code    ErrCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code ErrCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil.
func Wrap(err error, code ErrCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound is a convenience constructor for missing resources.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %q not found", resource, id)
}

// InvalidInput is a convenience constructor for field validation failures.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeInvalidInput, "%s: %s", field, message)
}

// Code extracts the ErrCode from any error, defaulting to internal.
func Code(err error) ErrCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain matching target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// HTTPStatus maps an error's code to an HTTP status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeGone:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
