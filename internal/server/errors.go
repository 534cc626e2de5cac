package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/a11y-auditor/internal/dispatch"
	"github.com/jonathan/a11y-auditor/internal/validation"
)

// ErrNotFound indicates a missing resource.
type ErrNotFound struct {
	What string
}

func (e *ErrNotFound) Error() string {
	return e.What + " not found"
}

// ErrBadRequest indicates a malformed request.
type ErrBadRequest struct {
	Message string
}

func (e *ErrBadRequest) Error() string {
	return e.Message
}

// ErrUnavailable indicates a feature whose backing service is not configured.
type ErrUnavailable struct {
	What string
}

func (e *ErrUnavailable) Error() string {
	return e.What + " is not configured"
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	var badRequest *ErrBadRequest
	var notFound *ErrNotFound
	var unavailable *ErrUnavailable
	var invalid *validation.Error
	var dispatchErr *dispatch.Error
	switch {
	case errors.As(err, &invalid), errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &dispatchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
