// Package model holds the appointment types shared by every scheduling
// component and the error taxonomy they report through.
package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation is caught locally and never sent to the clinic API.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized is propagated untouched so the caller can re-authenticate.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	// ErrConflict means the slot was taken between fetch and submit.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable means availability could not be fetched, as opposed to a
	// day with no open slots.
	ErrUnavailable       = errors.New("availability unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TransportError is a network failure or unexpected non-2xx response.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: clinic api returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable is always true: the caller may try again as a fresh action.
// Nothing in the service retries on its own.
func (e *TransportError) Retryable() bool { return true }

func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable()
}

// HTTPStatus maps an error onto the status code handlers respond with.
func HTTPStatus(err error) int {
	var te *TransportError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
