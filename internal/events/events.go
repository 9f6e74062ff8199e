package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies which transition an Event records
type Type string

// Event types, one per queue transition
const (
	TypeRequestEnqueued  Type = "request.enqueued"
	TypeRequestStarted   Type = "request.started"
	TypeRequestRetrying  Type = "request.retrying"
	TypeRequestCompleted Type = "request.completed"
	TypeRequestFailed    Type = "request.failed"
)

// Event is a queue-state transition record. Terminal events (completed and
// failed) double as completion notifications for external listeners.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates which transition occurred
	Type Type `json:"type"`

	RequestID   uuid.UUID `json:"request_id"`
	OwnerID     string    `json:"owner_id"`
	RequestType string    `json:"request_type"`

	// Status is the item status after the transition
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`

	Result           json.RawMessage `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms,omitempty"`

	// Timestamp is when the transition happened
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an Event with a fresh id for the given transition.
func NewEvent(eventType Type, requestID uuid.UUID, at time.Time) *Event {
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		RequestID: requestID,
		Timestamp: at,
	}
}

// Terminal reports whether the event records a completed or failed request.
func (e *Event) Terminal() bool {
	return e.Type == TypeRequestCompleted || e.Type == TypeRequestFailed
}

// Marshal encodes the event as JSON for transport sinks.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the processing core to publish transitions without direct
// knowledge of the sinks.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// TerminalOnly wraps a handler so it only sees completed and failed events.
func TerminalOnly(next EventHandler) EventHandler {
	return HandlerFunc(func(ctx context.Context, event *Event) error {
		if !event.Terminal() {
			return nil
		}
		return next.HandleEvent(ctx, event)
	})
}
