package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindInvalidCredentials
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status maps an error kind to its HTTP status code.
func (k ErrorKind) Status() int {
	switch k {
	case KindValidation, KindInvalidCredentials:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AppError is an error that is safe to show to the caller.
type AppError struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewValidationError(message string, fields map[string]string) *AppError {
	return &AppError{Kind: KindValidation, Message: message, Fields: fields}
}

func NewNotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func NewConflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func NewForbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

// ErrInvalidCredentials is returned for both unknown usernames and wrong passwords.
var ErrInvalidCredentials = &AppError{Kind: KindInvalidCredentials, Message: "Invalid credentials"}

// Internal wraps an unexpected failure; the cause is logged, never returned to the caller.
func Internal(err error) *AppError {
	return &AppError{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// KindOf returns the kind of err, KindInternal when err is not an *AppError.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
