// Package errors defines the coded errors rendered in API responses.
package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

// ErrorType groups codes for metrics and log levels.
type ErrorType string

const (
	ErrorTypeClient  ErrorType = "client_error"
	ErrorTypeServer  ErrorType = "server_error"
	ErrorTypeNetwork ErrorType = "network_error"
)

const (
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken       ErrorCode = "EXPIRED_TOKEN"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrInvalidStatus rejects a transition the record's state forbids,
	// such as reviewing a correction twice.
	ErrInvalidStatus ErrorCode = "INVALID_STATUS"
)

// Codes missing here are server errors.
var codeTypes = map[ErrorCode]ErrorType{
	ErrCodeBadRequest:         ErrorTypeClient,
	ErrCodeUnauthorized:       ErrorTypeClient,
	ErrCodeForbidden:          ErrorTypeClient,
	ErrCodeNotFound:           ErrorTypeClient,
	ErrCodeInvalidToken:       ErrorTypeClient,
	ErrCodeExpiredToken:       ErrorTypeClient,
	ErrCodeValidation:         ErrorTypeClient,
	ErrCodeConflict:           ErrorTypeClient,
	ErrInvalidStatus:          ErrorTypeClient,
	ErrCodeServiceUnavailable: ErrorTypeNetwork,
	ErrCodeTimeout:            ErrorTypeNetwork,
}

func typeOf(code ErrorCode) ErrorType {
	if t, ok := codeTypes[code]; ok {
		return t
	}
	return ErrorTypeServer
}

type AppError struct {
	Code      ErrorCode
	Message   string
	Details   any
	Err       error
	ErrorType ErrorType
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches on Code and, when both carry one, on Message, so two sentinels
// sharing a code (e.g. two CONFLICT errors) stay distinguishable.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e.Code != t.Code {
		return false
	}
	return t.Message == "" || e.Message == t.Message
}

// Clone returns a shallow copy that is safe to decorate with request-scoped details.
func (e *AppError) Clone() *AppError {
	c := *e
	return &c
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, ErrorType: typeOf(code)}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	e := New(code, message)
	e.Err = err
	return e
}

func WithDetails(code ErrorCode, message string, details any) *AppError {
	e := New(code, message)
	e.Details = details
	return e
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is, or wraps, an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

var ErrUnauthorized = New(ErrCodeUnauthorized, "Unauthorized")
