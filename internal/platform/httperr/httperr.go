// Package httperr defines the service-wide error taxonomy and its mapping
// onto HTTP statuses. Services return errors wrapped around these sentinels;
// handlers convert them in one place instead of choosing a status ad hoc.
package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized marks a missing or invalid identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound marks an absent referenced entity. It is also returned
	// where a Forbidden would leak existence.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness or state-transition conflict.
	ErrConflict = errors.New("conflict")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted detail message.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConflict}, args...)...)
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a service error to an echo.HTTPError. Unexpected errors
// become a generic 500 so internals do not leak to clients.
func ToHTTP(err error) error {
	status := Status(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error")
	}
	return echo.NewHTTPError(status, err.Error())
}
