package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrCode = "FORBIDDEN"
	ErrCodeRateLimited  ErrCode = "RATE_LIMITED"
	ErrCodeTransient    ErrCode = "TRANSIENT"
	ErrCodeMalformed    ErrCode = "MALFORMED_RESPONSE"
	ErrCodeInternal     ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest   ErrCode = "BAD_REQUEST"
)

// AppError represents an application error. Callers branch on Code rather
// than string-matching messages.
type AppError struct {
	Code    ErrCode
	Message string
	ResetAt time.Time // set only for rate-limited errors
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewRateLimitedError creates a new rate limited error. resetAt is the
// instant the budget replenishes, taken from the response headers.
func NewRateLimitedError(message string, resetAt time.Time) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
		ResetAt: resetAt,
	}
}

// NewTransientError creates an error for timeouts, connection resets and
// 5xx responses that are expected to succeed on retry.
func NewTransientError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeTransient,
		Message: message,
		Err:     err,
	}
}

// NewMalformedError creates an error for responses whose shape could not
// be decoded. The offending payload belongs in the message for diagnosis.
func NewMalformedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeMalformed,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// CodeOf returns the taxonomy code of err, or ErrCodeInternal when err is
// not an AppError.
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return CodeOf(err) == ErrCodeRateLimited
}

// IsTransient checks if the error is a transient network/server error
func IsTransient(err error) bool {
	return CodeOf(err) == ErrCodeTransient
}

// IsFatal reports whether err can never be fixed by retrying.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeRateLimited, ErrCodeTransient:
		return false
	}
	return true
}

// ResetTime returns the rate-limit reset instant carried by err, and
// whether one was present.
func ResetTime(err error) (time.Time, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == ErrCodeRateLimited && !appErr.ResetAt.IsZero() {
		return appErr.ResetAt, true
	}
	return time.Time{}, false
}
