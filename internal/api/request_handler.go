package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/insight-api/internal/api/shared"
	"github.com/phrazzld/insight-api/internal/platform/logger"
	"github.com/phrazzld/insight-api/internal/platform/postgres"
	"github.com/phrazzld/insight-api/internal/processing"
)

// RequestService is the subset of processing.Service used by the handlers.
type RequestService interface {
	Submit(ctx context.Context, req processing.ProcessingRequest) (uuid.UUID, error)
	Process(ctx context.Context, req processing.ProcessingRequest) (*processing.ProcessingResult, error)
	BatchProcess(ctx context.Context, reqs []processing.ProcessingRequest) ([]*processing.ProcessingResult, error)
	AwaitResult(ctx context.Context, id uuid.UUID, timeout time.Duration) (*processing.ProcessingResult, error)
	GetItem(id uuid.UUID) (processing.QueueItem, error)
	QueueStatus() processing.StatusSnapshot
	ClearCompleted() int
}

// TransitionLister reads the transition audit log.
type TransitionLister interface {
	ListByRequest(ctx context.Context, ownerID string, requestID uuid.UUID) ([]postgres.Transition, error)
}

// RequestHandler handles request submission and queue introspection.
type RequestHandler struct {
	service     RequestService
	transitions TransitionLister
}

// RequestHandlerOption configures a RequestHandler.
type RequestHandlerOption func(*RequestHandler)

// WithTransitions enables the transition history endpoint.
func WithTransitions(lister TransitionLister) RequestHandlerOption {
	return func(h *RequestHandler) {
		h.transitions = lister
	}
}

// NewRequestHandler creates a new RequestHandler
func NewRequestHandler(service RequestService, opts ...RequestHandlerOption) *RequestHandler {
	h := &RequestHandler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HasTransitions reports whether the history endpoint is backed by a store.
func (h *RequestHandler) HasTransitions() bool {
	return h.transitions != nil
}

// Submit handles POST /api/requests
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerID(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id, err := h.service.Submit(r.Context(), req.toProcessingRequest(ownerID))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("request submitted",
		"request_id", id,
		"request_type", req.RequestType)

	// 202 Accepted since processing happens asynchronously
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{ID: id})
}

// Process handles POST /api/requests/process. It holds the connection until
// the request reaches a terminal state or the await timeout expires.
func (h *RequestHandler) Process(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerID(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.service.Process(r.Context(), req.toProcessingRequest(ownerID))
	h.respondWithResult(w, r, res, err)
}

// BatchProcess handles POST /api/requests/batch
func (h *RequestHandler) BatchProcess(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerID(w, r)
	if !ok {
		return
	}

	var body BatchRequest
	if !decodeAndValidate(w, r, &body) {
		return
	}

	reqs := make([]processing.ProcessingRequest, len(body.Requests))
	for i, req := range body.Requests {
		reqs[i] = req.toProcessingRequest(ownerID)
	}

	results, err := h.service.BatchProcess(r.Context(), reqs)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, BatchResponse{Results: results})
}

// GetRequest handles GET /api/requests/{id}
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	item, ok := h.ownedItem(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// AwaitResult handles GET /api/requests/{id}/result for submit-then-wait
// clients.
func (h *RequestHandler) AwaitResult(w http.ResponseWriter, r *http.Request) {
	timeout, err := parseTimeout(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	item, ok := h.ownedItem(w, r)
	if !ok {
		return
	}

	res, err := h.service.AwaitResult(r.Context(), item.ID, timeout)
	if err == nil && res.Status == processing.StatusFailed {
		shared.RespondWithJSON(w, r, http.StatusUnprocessableEntity, res)
		return
	}
	h.respondWithResult(w, r, res, err)
}

// ListTransitions handles GET /api/requests/{id}/transitions
func (h *RequestHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerID(w, r)
	if !ok {
		return
	}
	if h.transitions == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Transition history is not enabled")
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	transitions, err := h.transitions.ListByRequest(r.Context(), ownerID, id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if len(transitions) == 0 {
		shared.RespondWithError(w, r, http.StatusNotFound, "Request not found")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TransitionsResponse{Transitions: transitions})
}

// QueueStatus handles GET /api/queue/status
func (h *RequestHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.service.QueueStatus())
}

// ClearCompleted handles DELETE /api/queue/completed
func (h *RequestHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	purged := h.service.ClearCompleted()
	logger.FromContext(r.Context()).Info("terminal queue items purged", "purged", purged)
	shared.RespondWithJSON(w, r, http.StatusOK, PurgeResponse{Purged: purged})
}

// ownedItem loads the item named by the path and checks it belongs to the
// caller. Items of other owners are reported as not found.
func (h *RequestHandler) ownedItem(w http.ResponseWriter, r *http.Request) (processing.QueueItem, bool) {
	ownerID, ok := getOwnerID(w, r)
	if !ok {
		return processing.QueueItem{}, false
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return processing.QueueItem{}, false
	}

	item, err := h.service.GetItem(id)
	if err != nil {
		HandleAPIError(w, r, err)
		return processing.QueueItem{}, false
	}
	if item.Request.OwnerID != ownerID {
		HandleAPIError(w, r, processing.ErrRequestNotFound)
		return processing.QueueItem{}, false
	}
	return item, true
}

// respondWithResult writes a terminal result. A failed request is returned
// with 422 so the caller still sees the invoker's message.
func (h *RequestHandler) respondWithResult(
	w http.ResponseWriter,
	r *http.Request,
	res *processing.ProcessingResult,
	err error,
) {
	if err != nil {
		if errors.Is(err, processing.ErrProcessingFailed) && res != nil {
			logger.FromContext(r.Context()).Debug("request failed",
				"request_id", res.RequestID,
				"error", err)
			shared.RespondWithJSON(w, r, http.StatusUnprocessableEntity, res)
			return
		}
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, res)
}
