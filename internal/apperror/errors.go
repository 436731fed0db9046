// Package apperror provides domain-specific error types for MealBuddy.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler renders them as {"detail": "<message>"}.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// InternalMessage is the only detail a client ever sees for a 500.
const InternalMessage = "Internal server error"

// AppError is the base error type for all domain errors.
type AppError struct {
	// Code is the HTTP status code (e.g., 401, 409, 502).
	Code int `json:"-"`

	// Type is a machine-readable classifier used in logs (e.g., "conflict").
	Type string `json:"type"`

	// Message is safe to show to the client.
	Message string `json:"detail"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
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

func newError(code int, typ, message string) *AppError {
	return &AppError{Code: code, Type: typ, Message: message}
}

// NewBadRequest creates a 400 error for malformed requests.
func NewBadRequest(message string) *AppError {
	return newError(http.StatusBadRequest, "bad_request", message)
}

// NewValidation creates a 400 error for input that fails field constraints
// (password length, confirmation mismatch, bad email).
func NewValidation(message string) *AppError {
	return newError(http.StatusBadRequest, "validation_error", message)
}

// NewDuplicate creates a 400 error for a unique value (such as an email)
// that is already taken.
func NewDuplicate(message string) *AppError {
	return newError(http.StatusBadRequest, "conflict", message)
}

// NewUnauthorized creates a 401 error. The error handler adds the
// WWW-Authenticate: Bearer challenge.
func NewUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, "unauthorized", message)
}

// NewForbidden creates a 403 error.
func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, "forbidden", message)
}

// NewNotFound creates a 404 error. Repositories return it for missing rows.
func NewNotFound(message string) *AppError {
	return newError(http.StatusNotFound, "not_found", message)
}

// NewConflict creates a 409 error.
func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, "conflict", message)
}

// NewTooManyRequests creates a 429 error for rate-limited clients.
func NewTooManyRequests(message string) *AppError {
	return newError(http.StatusTooManyRequests, "rate_limited", message)
}

// NewUnavailable creates a 503 error for features or dependencies that are
// not configured or not reachable.
func NewUnavailable(message string) *AppError {
	return newError(http.StatusServiceUnavailable, "unavailable", message)
}

// NewBadGateway creates a 502 error for a failed call to an upstream
// provider. The upstream error is kept for logging only.
func NewBadGateway(message string, err error) *AppError {
	e := newError(http.StatusBadGateway, "bad_gateway", message)
	e.Internal = err
	return e
}

// NewInternal creates a 500 error. The cause is logged, the client only
// sees InternalMessage.
func NewInternal(err error) *AppError {
	e := newError(http.StatusInternalServerError, "internal_error", InternalMessage)
	e.Internal = err
	return e
}

var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 for handler guards that find no
// authenticated user where middleware should have set one.
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// SafeMessage returns the client-safe message for err. Anything that is not
// an AppError yields InternalMessage, so table names, query text or stack
// traces never reach the response.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return InternalMessage
}

// SafeCode returns the HTTP status carried by err, or 500.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Is reports whether err is an AppError carrying the given HTTP status.
func Is(err error, code int) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound reports whether err is a 404 AppError.
func IsNotFound(err error) bool {
	return Is(err, http.StatusNotFound)
}
