package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

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

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrInvalidTransition, ErrConcurrentModification:
		return http.StatusConflict
	case ErrCutoffExceeded, ErrPreconditionMissing:
		return http.StatusUnprocessableEntity
	case ErrNoEligiblePartner:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal

	// Fulfillment rejections
	ErrInvalidTransition
	ErrCutoffExceeded
	ErrNoEligiblePartner
	ErrConcurrentModification
	ErrPreconditionMissing
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:               "NOT_FOUND",
	ErrBadRequest:             "BAD_REQUEST",
	ErrUnauthorized:           "UNAUTHORIZED",
	ErrForbidden:              "FORBIDDEN",
	ErrInternal:               "INTERNAL",
	ErrInvalidTransition:      "INVALID_TRANSITION",
	ErrCutoffExceeded:         "CUTOFF_EXCEEDED",
	ErrNoEligiblePartner:      "NO_ELIGIBLE_PARTNER",
	ErrConcurrentModification: "CONCURRENT_MODIFICATION",
	ErrPreconditionMissing:    "PRECONDITION_MISSING",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", int(c))
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

func NewInvalidTransition(entity, from, event string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("%s cannot handle %s while %s", entity, event, from),
	}
}

func NewPreconditionMissing(message string) *AppError {
	return &AppError{
		Code:    ErrPreconditionMissing,
		Message: message,
	}
}

func NewCutoffExceeded(message string) *AppError {
	return &AppError{
		Code:    ErrCutoffExceeded,
		Message: message,
	}
}

func NewNoEligiblePartner(kind string) *AppError {
	return &AppError{
		Code:    ErrNoEligiblePartner,
		Message: fmt.Sprintf("no eligible %s available", kind),
	}
}

func NewConcurrentModification(resource string) *AppError {
	return &AppError{
		Code:    ErrConcurrentModification,
		Message: fmt.Sprintf("%s was modified concurrently, reload and retry", resource),
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}
