package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/insight-api/internal/api/shared"
)

// TimeoutQueryParam overrides the await timeout on GET /api/requests/{id}/result
const TimeoutQueryParam = "timeout"

// MaxAwaitTimeout bounds caller-supplied await timeouts
const MaxAwaitTimeout = 5 * time.Minute

// getOwnerID extracts the authenticated owner id, writing a 401 when absent.
func getOwnerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := shared.GetOwnerID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Owner not found in token")
		return "", false
	}
	return ownerID, true
}

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%s is required", paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s has invalid format", paramName)
	}
	return id, nil
}

// parseTimeout reads the optional timeout query parameter. Zero means the
// service default.
func parseTimeout(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get(TimeoutQueryParam)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("timeout must be a positive duration such as 10s")
	}
	if d > MaxAwaitTimeout {
		d = MaxAwaitTimeout
	}
	return d, nil
}

// decodeAndValidate decodes the JSON body into v and validates it, writing a
// 400 response on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}

// SanitizeValidationError turns validator errors into a short message
// naming the failing fields.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Validation error"
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("Invalid %s: %s", fe.Namespace(), getValidationTagMessage(fe.Tag())))
	}
	return strings.Join(msgs, "; ")
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
