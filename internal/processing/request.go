package processing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RequestType identifies the kind of analysis a request asks for
type RequestType string

// Supported request types
const (
	RequestTypePatternAnalysis          RequestType = "pattern_analysis"
	RequestTypePriorityPrediction       RequestType = "priority_prediction"
	RequestTypeCompletionForecast       RequestType = "completion_forecast"
	RequestTypeNotificationContext      RequestType = "notification_context"
	RequestTypeRecommendationGeneration RequestType = "recommendation_generation"
)

// RequestTypes lists every request type the core knows about.
func RequestTypes() []RequestType {
	return []RequestType{
		RequestTypePatternAnalysis,
		RequestTypePriorityPrediction,
		RequestTypeCompletionForecast,
		RequestTypeNotificationContext,
		RequestTypeRecommendationGeneration,
	}
}

// Priority orders pending requests. Higher priorities are dispatched first.
type Priority string

// Priority values
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// rank maps a priority to a sortable weight. Unknown values rank as medium.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// ProcessingRequest is the immutable input submitted by a caller.
// The request type is not restricted to the known set here: an unrecognised
// type is a permanent invoker failure, not a validation error.
type ProcessingRequest struct {
	RequestType RequestType       `json:"request_type" validate:"required"`
	OwnerID     string            `json:"owner_id" validate:"required"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Priority    Priority          `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

var validate = validator.New()

// ValidateRequest checks required fields and normalises defaults.
// It returns a copy of the request with an empty priority set to medium,
// or an error wrapping ErrInvalidRequest.
func ValidateRequest(req ProcessingRequest) (ProcessingRequest, error) {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return req, fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, ", "))
		}
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return req, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidRequest)
	}

	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	return req, nil
}
