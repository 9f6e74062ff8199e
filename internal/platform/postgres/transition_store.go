package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/insight-api/internal/events"
	"github.com/phrazzld/insight-api/internal/platform/logger"
)

// ErrNilEvent is returned when a nil event is handed to the store
var ErrNilEvent = errors.New("event cannot be nil")

// Transition is a persisted request transition row.
type Transition struct {
	ID               uuid.UUID       `json:"id"`
	RequestID        uuid.UUID       `json:"request_id"`
	EventType        events.Type     `json:"event_type"`
	OwnerID          string          `json:"owner_id"`
	RequestType      string          `json:"request_type"`
	Status           string          `json:"status"`
	RetryCount       int             `json:"retry_count"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// TransitionStore records every request transition in request_transitions.
// It implements events.EventHandler so it can be registered directly on the
// event emitter.
type TransitionStore struct {
	db     DBTX
	logger *slog.Logger
}

// NewTransitionStore creates a TransitionStore over the given connection.
func NewTransitionStore(db DBTX, logger *slog.Logger) *TransitionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionStore{
		db:     db,
		logger: logger.With(slog.String("component", "transition_store")),
	}
}

// WithTx returns a store that writes through the given transaction.
func (s *TransitionStore) WithTx(tx *sql.Tx) *TransitionStore {
	return &TransitionStore{db: tx, logger: s.logger}
}

// HandleEvent inserts the event as a transition row.
func (s *TransitionStore) HandleEvent(ctx context.Context, event *events.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	var result any
	if len(event.Result) > 0 {
		result = string(event.Result)
	}
	var errMsg any
	if event.Error != "" {
		errMsg = event.Error
	}

	query := `
		INSERT INTO request_transitions (
			id, request_id, event_type, owner_id, request_type, status,
			retry_count, result, error_message, processing_time_ms, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.RequestID,
		string(event.Type),
		event.OwnerID,
		event.RequestType,
		event.Status,
		event.RetryCount,
		result,
		errMsg,
		event.ProcessingTimeMs,
		event.Timestamp.UTC(),
	)
	if err != nil {
		log.Error("failed to record transition",
			slog.String("error", err.Error()),
			slog.String("request_id", event.RequestID.String()),
			slog.String("event_type", string(event.Type)))
		return fmt.Errorf("failed to record transition: %w", err)
	}

	log.Debug("transition recorded",
		slog.String("request_id", event.RequestID.String()),
		slog.String("event_type", string(event.Type)))
	return nil
}

// ListByRequest returns the transitions of one request in the order they
// occurred. The owner filter keeps callers from reading other owners' history.
func (s *TransitionStore) ListByRequest(
	ctx context.Context,
	ownerID string,
	requestID uuid.UUID,
) ([]Transition, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, request_id, event_type, owner_id, request_type, status,
			retry_count, result, error_message, processing_time_ms, occurred_at
		FROM request_transitions
		WHERE request_id = $1 AND owner_id = $2
		ORDER BY occurred_at ASC, recorded_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, requestID, ownerID)
	if err != nil {
		log.Error("failed to query transitions",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID.String()))
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var out []Transition
	for rows.Next() {
		var (
			t         Transition
			eventType string
			result    []byte
			errMsg    sql.NullString
		)
		if err := rows.Scan(
			&t.ID,
			&t.RequestID,
			&eventType,
			&t.OwnerID,
			&t.RequestType,
			&t.Status,
			&t.RetryCount,
			&result,
			&errMsg,
			&t.ProcessingTimeMs,
			&t.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.EventType = events.Type(eventType)
		if len(result) > 0 {
			t.Result = json.RawMessage(result)
		}
		t.Error = errMsg.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transitions: %w", err)
	}
	return out, nil
}
