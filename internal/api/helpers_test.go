package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/insight-api/internal/api/shared"
	"github.com/phrazzld/insight-api/internal/platform/logger"
	"github.com/phrazzld/insight-api/internal/processing"
	"github.com/stretchr/testify/require"
)

const testOwner = "owner-1"

// mockRequestService implements RequestService with replaceable functions
type mockRequestService struct {
	SubmitFn         func(ctx context.Context, req processing.ProcessingRequest) (uuid.UUID, error)
	ProcessFn        func(ctx context.Context, req processing.ProcessingRequest) (*processing.ProcessingResult, error)
	BatchProcessFn   func(ctx context.Context, reqs []processing.ProcessingRequest) ([]*processing.ProcessingResult, error)
	AwaitResultFn    func(ctx context.Context, id uuid.UUID, timeout time.Duration) (*processing.ProcessingResult, error)
	GetItemFn        func(id uuid.UUID) (processing.QueueItem, error)
	QueueStatusFn    func() processing.StatusSnapshot
	ClearCompletedFn func() int
}

func (m *mockRequestService) Submit(ctx context.Context, req processing.ProcessingRequest) (uuid.UUID, error) {
	return m.SubmitFn(ctx, req)
}

func (m *mockRequestService) Process(
	ctx context.Context,
	req processing.ProcessingRequest,
) (*processing.ProcessingResult, error) {
	return m.ProcessFn(ctx, req)
}

func (m *mockRequestService) BatchProcess(
	ctx context.Context,
	reqs []processing.ProcessingRequest,
) ([]*processing.ProcessingResult, error) {
	return m.BatchProcessFn(ctx, reqs)
}

func (m *mockRequestService) AwaitResult(
	ctx context.Context,
	id uuid.UUID,
	timeout time.Duration,
) (*processing.ProcessingResult, error) {
	return m.AwaitResultFn(ctx, id, timeout)
}

func (m *mockRequestService) GetItem(id uuid.UUID) (processing.QueueItem, error) {
	return m.GetItemFn(id)
}

func (m *mockRequestService) QueueStatus() processing.StatusSnapshot {
	return m.QueueStatusFn()
}

func (m *mockRequestService) ClearCompleted() int {
	return m.ClearCompletedFn()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withOwner injects the authenticated owner the way the auth middleware does
func withOwner(ownerID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			ctx = logger.WithLogger(ctx, testLogger())
			if ownerID != "" {
				ctx = shared.WithOwnerID(ctx, ownerID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// newTestRouter mounts the handler routes behind a fake authenticator
func newTestRouter(h *RequestHandler, ownerID string) http.Handler {
	r := chi.NewRouter()
	r.Use(withOwner(ownerID))
	r.Post("/api/requests", h.Submit)
	r.Post("/api/requests/process", h.Process)
	r.Post("/api/requests/batch", h.BatchProcess)
	r.Get("/api/requests/{id}", h.GetRequest)
	r.Get("/api/requests/{id}/result", h.AwaitResult)
	r.Get("/api/requests/{id}/transitions", h.ListTransitions)
	r.Get("/api/queue/status", h.QueueStatus)
	r.Delete("/api/queue/completed", h.ClearCompleted)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func completedResult(id uuid.UUID) *processing.ProcessingResult {
	return &processing.ProcessingResult{
		RequestID:        id,
		RequestType:      processing.RequestTypePatternAnalysis,
		OwnerID:          testOwner,
		Result:           json.RawMessage(`{"patterns":[]}`),
		ProcessingTimeMs: 12,
		Timestamp:        time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Status:           processing.StatusCompleted,
	}
}

func failedResult(id uuid.UUID, msg string) *processing.ProcessingResult {
	res := completedResult(id)
	res.Result = nil
	res.Status = processing.StatusFailed
	res.Error = &msg
	return res
}
