package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the memory subsystem.
type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrValidation         ErrorCode = "VALIDATION"
	ErrAlreadyExists      ErrorCode = "ALREADY_EXISTS"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewNotFound creates a NOT_FOUND error for a named entity.
func NewNotFound(kind, name string) *Error {
	return &Error{Code: ErrNotFound, Message: fmt.Sprintf("%s %q not found", kind, name)}
}

// NewValidation creates a VALIDATION error.
func NewValidation(message string) *Error {
	return &Error{Code: ErrValidation, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrNotFound
}

// IsValidation reports whether err carries the VALIDATION code.
func IsValidation(err error) bool {
	return GetErrorCode(err) == ErrValidation
}
