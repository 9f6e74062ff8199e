package api

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/phrazzld/insight-api/internal/platform/postgres"
	"github.com/phrazzld/insight-api/internal/platform/telemetry"
	"github.com/phrazzld/insight-api/internal/processing"
)

// MaxBatchRequests caps the number of requests accepted by one batch call
const MaxBatchRequests = 100

// SubmitRequest is the body of the submit, process and batch endpoints.
// The owner is always taken from the access token.
type SubmitRequest struct {
	RequestType string            `json:"request_type" validate:"required"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Priority    string            `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// toProcessingRequest builds the core request for the given owner.
func (s SubmitRequest) toProcessingRequest(ownerID string) processing.ProcessingRequest {
	return processing.ProcessingRequest{
		RequestType: processing.RequestType(s.RequestType),
		OwnerID:     ownerID,
		Payload:     s.Payload,
		Priority:    processing.Priority(s.Priority),
		Metadata:    s.Metadata,
	}
}

// BatchRequest is the body of POST /api/requests/batch.
type BatchRequest struct {
	Requests []SubmitRequest `json:"requests" validate:"required,min=1,max=100,dive"`
}

// SubmitResponse is returned when a request is accepted.
type SubmitResponse struct {
	ID uuid.UUID `json:"id"`
}

// BatchResponse carries batch results in request order.
type BatchResponse struct {
	Results []*processing.ProcessingResult `json:"results"`
}

// PurgeResponse reports how many terminal items were removed.
type PurgeResponse struct {
	Purged int `json:"purged"`
}

// TransitionsResponse lists the recorded transitions of one request.
type TransitionsResponse struct {
	Transitions []postgres.Transition `json:"transitions"`
}

// MetricsResponse is the current value of every instrument.
type MetricsResponse struct {
	Metrics []telemetry.Point `json:"metrics"`
}
