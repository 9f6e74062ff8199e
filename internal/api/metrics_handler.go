package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/insight-api/internal/api/shared"
	"github.com/phrazzld/insight-api/internal/platform/telemetry"
)

// MetricsSource collects the current instrument values.
type MetricsSource interface {
	Snapshot(ctx context.Context) ([]telemetry.Point, error)
}

// MetricsHandler serves the collected metrics as JSON.
type MetricsHandler struct {
	source MetricsSource
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler(source MetricsSource) *MetricsHandler {
	return &MetricsHandler{source: source}
}

// Metrics handles GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	points, err := h.source.Snapshot(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to collect metrics", err)
		return
	}
	if points == nil {
		points = []telemetry.Point{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, MetricsResponse{Metrics: points})
}
