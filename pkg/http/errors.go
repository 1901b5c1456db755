package http

import (
	"fmt"
	"net/http"
)

// AppError is a rejection the webhook reports to its caller.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
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

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
	}
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// InvalidPayloadError creates a 400 error for unusable webhook bodies.
func InvalidPayloadError(field, message string) *AppError {
	return NewAppError("ERR_INVALID_PAYLOAD", field, message, http.StatusBadRequest)
}

// UnauthorizedError creates a 401 error for a bad shared secret.
func UnauthorizedError(message string) *AppError {
	return NewAppError("ERR_UNAUTHORIZED", "", message, http.StatusUnauthorized)
}

// ForbiddenError creates a 403 error for origins outside the allowlist.
func ForbiddenError(message string) *AppError {
	return NewAppError("ERR_FORBIDDEN", "", message, http.StatusForbidden)
}

// TooManyRequestsError creates a 429 error.
func TooManyRequestsError(message string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", message, http.StatusTooManyRequests)
}
