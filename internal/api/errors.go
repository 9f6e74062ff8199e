package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/phrazzld/insight-api/internal/api/shared"
	"github.com/phrazzld/insight-api/internal/auth"
	"github.com/phrazzld/insight-api/internal/processing"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject):
		return http.StatusUnauthorized

	// Bad request errors
	case errors.Is(err, processing.ErrInvalidRequest):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, processing.ErrRequestNotFound):
		return http.StatusNotFound

	// The request ran and failed
	case errors.Is(err, processing.ErrProcessingFailed):
		return http.StatusUnprocessableEntity

	// The caller's wait budget expired; the request keeps running
	case errors.Is(err, processing.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, processing.ErrServiceStopped):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Validation errors are returned verbatim since
// their text is built from field names and rule tags only.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject):
		return "Invalid token"

	case errors.Is(err, processing.ErrInvalidRequest):
		return err.Error()

	case errors.Is(err, processing.ErrRequestNotFound):
		return "Request not found"

	case errors.Is(err, processing.ErrProcessingFailed):
		return "Request processing failed"

	case errors.Is(err, processing.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for the result"

	case errors.Is(err, processing.ErrServiceStopped):
		return "Service is shutting down"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error envelope for err, choosing the status code
// and message from its type, and logs the detailed error.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
