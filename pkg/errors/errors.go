package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInvalidState
	ErrSlotUnavailable
	ErrInsufficientCredits
	ErrExternalDependency
	ErrInvariant
	ErrInternal
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so callers can branch on sentinel values.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

// Retryable reports whether the caller may retry the failed operation.
// Only infrastructure failures qualify; precondition failures never do.
func (e *AppError) Retryable() bool {
	return e.Code == ErrExternalDependency
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    ErrUnauthorized,
		Message: message,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
		Err:     err,
	}
}

func InvalidState(message string, err error) *AppError {
	return &AppError{
		Code:    ErrInvalidState,
		Message: message,
		Err:     err,
	}
}

func SlotUnavailable(message string, err error) *AppError {
	if message == "" {
		message = "time slot is no longer available"
	}
	return &AppError{
		Code:    ErrSlotUnavailable,
		Message: message,
		Err:     err,
	}
}

func InsufficientCredits(message string, err error) *AppError {
	if message == "" {
		message = "insufficient credits"
	}
	return &AppError{
		Code:    ErrInsufficientCredits,
		Message: message,
		Err:     err,
	}
}

func ExternalDependency(dependency string, err error) *AppError {
	return &AppError{
		Code:    ErrExternalDependency,
		Message: fmt.Sprintf("%s unavailable", dependency),
		Err:     err,
	}
}

// Invariant signals a balance/ledger mismatch or similar corruption. It
// should never surface from correct code paths.
func Invariant(message string, err error) *AppError {
	return &AppError{
		Code:    ErrInvariant,
		Message: message,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    ErrInternal,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to ErrInternal for
// errors that did not originate in this package.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
