package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/insight-api/internal/api/shared"
	"github.com/phrazzld/insight-api/internal/platform/telemetry"
)

// metricsSourceFunc adapts a function to MetricsSource
type metricsSourceFunc func(ctx context.Context) ([]telemetry.Point, error)

func (f metricsSourceFunc) Snapshot(ctx context.Context) ([]telemetry.Point, error) {
	return f(ctx)
}

func newMetricsRouter(source MetricsSource) http.Handler {
	r := chi.NewRouter()
	r.Use(withOwner(""))
	r.Get("/metrics", NewMetricsHandler(source).Metrics)
	return r
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	t.Run("returns collected points", func(t *testing.T) {
		router := newMetricsRouter(metricsSourceFunc(func(context.Context) ([]telemetry.Point, error) {
			return []telemetry.Point{{
				Name:       "insight.requests.enqueued",
				Kind:       telemetry.KindSum,
				Attributes: map[string]string{"request_type": "pattern_analysis"},
				Value:      3,
			}}, nil
		}))

		rr := doRequest(t, router, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		body := decodeBody[MetricsResponse](t, rr)
		require.Len(t, body.Metrics, 1)
		assert.Equal(t, "insight.requests.enqueued", body.Metrics[0].Name)
		assert.Equal(t, float64(3), body.Metrics[0].Value)
	})

	t.Run("empty snapshot is an empty list", func(t *testing.T) {
		router := newMetricsRouter(metricsSourceFunc(func(context.Context) ([]telemetry.Point, error) {
			return nil, nil
		}))

		rr := doRequest(t, router, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"metrics":[]}`, rr.Body.String())
	})

	t.Run("collection failure", func(t *testing.T) {
		router := newMetricsRouter(metricsSourceFunc(func(context.Context) ([]telemetry.Point, error) {
			return nil, errors.New("reader is shutdown")
		}))

		rr := doRequest(t, router, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)

		body := decodeBody[shared.ErrorResponse](t, rr)
		assert.Equal(t, "Failed to collect metrics", body.Error)
	})
}
