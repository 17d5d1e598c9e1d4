package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Exeat workflow error codes.
const (
	CodeExeatNotFound       = "EXEAT_NOT_FOUND"
	CodeConsentNotFound     = "CONSENT_NOT_FOUND"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeDependencyFailure   = "DEPENDENCY_FAILURE"
)

// Validation error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeFieldRequired    = "REQUIRED"
	CodeFieldTooShort    = "TOO_SHORT"
	CodeFieldTooLong     = "TOO_LONG"
	CodeFieldInvalid     = "INVALID"
)

// Account error codes.
const (
	CodeAuthFailed    = "AUTH_FAILED"
	CodeTokenInvalid  = "TOKEN_INVALID"
	CodeForbidden     = "FORBIDDEN"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeUserNotFound  = "USER_NOT_FOUND"
)

// Convenience constructors using predefined codes.

// ExeatNotFound creates the not-found error returned for unknown request ids.
func ExeatNotFound(id string, cause error) *AppError {
	if cause == nil {
		cause = ErrNotFound
	}
	return Wrap(cause, CodeExeatNotFound, "exeat request not found", http.StatusNotFound).
		WithParams(map[string]interface{}{"id": id})
}

// ConsentNotFound is returned when a request has no readable consent document.
func ConsentNotFound(id string, cause error) *AppError {
	if cause == nil {
		cause = ErrNotFound
	}
	return Wrap(cause, CodeConsentNotFound, "consent document not found", http.StatusNotFound).
		WithParams(map[string]interface{}{"id": id})
}

// InvalidTransition creates the error returned when an actor may not act on a
// request in its current stage.
func InvalidTransition(format string, args ...interface{}) *AppError {
	return Wrap(ErrInvalidTransition, CodeInvalidTransition, fmt.Sprintf(format, args...), http.StatusConflict)
}

// Validation creates a 400 error carrying field-level details.
func Validation(fieldErrors ...FieldError) *AppError {
	return Wrap(ErrValidation, CodeValidationFailed, "request validation failed", http.StatusBadRequest).
		WithFieldErrors(fieldErrors)
}

// ConcurrencyConflict creates the error surfaced when a concurrent commit won
// and retries were exhausted.
func ConcurrencyConflict(id string, cause error) *AppError {
	if cause == nil {
		cause = ErrConflict
	}
	return Wrap(cause, CodeConcurrencyConflict, "request was modified concurrently; re-read and retry", http.StatusConflict).
		WithParams(map[string]interface{}{"id": id})
}

// DependencyFailure creates a 503 error for collaborator failures whose effect
// is unknown.
func DependencyFailure(cause error) *AppError {
	switch {
	case cause == nil:
		cause = ErrDependency
	case !errors.Is(cause, ErrDependency):
		cause = fmt.Errorf("%w: %w", ErrDependency, cause)
	}
	return Wrap(cause, CodeDependencyFailure, "a backing service failed; the outcome is unknown", http.StatusServiceUnavailable)
}

// AuthFailed creates a 401 error for bad credentials or tokens.
func AuthFailed(message string) *AppError {
	return Wrap(ErrUnauthorized, CodeAuthFailed, message, http.StatusUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return Wrap(ErrForbidden, CodeForbidden, message, http.StatusForbidden)
}

// AlreadyExists creates a 409 error for uniqueness violations.
func AlreadyExists(message string) *AppError {
	return Wrap(ErrAlreadyExists, CodeAlreadyExists, message, http.StatusConflict)
}

// UserNotFound creates a 404 error for unknown profiles.
func UserNotFound() *AppError {
	return Wrap(ErrNotFound, CodeUserNotFound, "user not found", http.StatusNotFound)
}
