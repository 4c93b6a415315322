// Package apperror provides the domain error taxonomy for the auth core.
// Every error carries an HTTP status code and a client-safe message; the
// HTTP handlers map AppError values to responses and never leak raw
// infrastructure errors to the client.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base error type for all auth-domain errors. Message is
// safe to return to the client; Internal is for logs only.
type AppError struct {
	Code     int    `json:"-"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Internal error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// From extracts an *AppError from err, or nil when err is not one.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// NewInvalidInput creates a 400 error for malformed or missing input.
func NewInvalidInput(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "invalid_input",
		Message: message,
	}
}

// NewUnauthenticated creates a 401 error. The message must stay uniform
// across credential failures so it never reveals which part was wrong.
func NewUnauthenticated(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "unauthenticated",
		Message: message,
	}
}

// NewForbidden creates a 403 error for inactive accounts and missing roles.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewConflict creates a 409 error for duplicate-email provisioning.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewRateLimited creates a 429 error for an engaged lockout window.
func NewRateLimited(message string) *AppError {
	return &AppError{
		Code:    http.StatusTooManyRequests,
		Type:    "rate_limited",
		Message: message,
	}
}

// NewUnavailable creates a 500 error for downstream failures. The internal
// error is logged by the caller, never shown to the client.
func NewUnavailable(message string, internal error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "unavailable",
		Message:  message,
		Internal: internal,
	}
}
