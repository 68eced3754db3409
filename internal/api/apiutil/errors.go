package apiutil

import (
	"context"
	"errors"
	"net/http"

	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/geocode"
)

// DirectoryError maps directory and geocoding failures to HTTP responses.
func DirectoryError(err error, fallback string) error {
	switch {
	case errors.Is(err, directory.ErrInvalidCoordinate):
		return HandlerError{Status: http.StatusBadRequest, Message: "Coordinates are out of range", Err: err}
	case errors.Is(err, directory.ErrInvalidRadius):
		return HandlerError{Status: http.StatusBadRequest, Message: "Radius must not be negative", Err: err}
	case errors.Is(err, directory.ErrInvalidPhone):
		return HandlerError{Status: http.StatusBadRequest, Message: "Phone number is not valid", Err: err}
	case errors.Is(err, directory.ErrNotFound):
		return HandlerError{Status: http.StatusNotFound, Message: "Not found", Err: err}
	case errors.Is(err, directory.ErrForbidden):
		return HandlerError{Status: http.StatusForbidden, Message: "Forbidden", Err: err}
	case errors.Is(err, geocode.ErrAddressNotFound):
		return HandlerError{Status: http.StatusUnprocessableEntity, Message: "We couldn't find that address", Err: err}
	case errors.Is(err, geocode.ErrEmptyAddress):
		return HandlerError{Status: http.StatusBadRequest, Message: "Address is required", Err: err}
	case errors.Is(err, directory.ErrGeocodingDisabled):
		return HandlerError{Status: http.StatusServiceUnavailable, Message: "Address lookup is unavailable", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return HandlerError{Status: http.StatusGatewayTimeout, Message: "Request timed out", Err: err}
	default:
		return HandlerError{Status: http.StatusInternalServerError, Message: fallback, Err: err}
	}
}
