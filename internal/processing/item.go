package processing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a queue item
type Status string

// Possible status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition can occur from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultMaxRetries is the retry budget given to every queue item
const DefaultMaxRetries = 3

// QueueItem is the mutable scheduling record wrapping one submitted request.
// Values handed out by the queue are copies; only the queue mutates the
// originals.
type QueueItem struct {
	ID          uuid.UUID         `json:"id"`
	Request     ProcessingRequest `json:"request"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ReadyAt     time.Time         `json:"ready_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`

	// ProcessingTimeMs is the invoker-reported duration of the final attempt
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	// seq breaks ties between items created at the same instant
	seq uint64
}

// ProcessingResult is the immutable outcome delivered to waiters and to the
// event bridge once an item reaches a terminal state.
type ProcessingResult struct {
	RequestID        uuid.UUID       `json:"request_id"`
	RequestType      RequestType     `json:"request_type"`
	OwnerID          string          `json:"owner_id"`
	Result           json.RawMessage `json:"result"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	Timestamp        time.Time       `json:"timestamp"`
	Status           Status          `json:"status"`
	Error            *string         `json:"error"`
}

// resultOf builds the terminal result for an item. Callers must only pass
// items in a terminal state.
func resultOf(item *QueueItem) *ProcessingResult {
	res := &ProcessingResult{
		RequestID:        item.ID,
		RequestType:      item.Request.RequestType,
		OwnerID:          item.Request.OwnerID,
		ProcessingTimeMs: item.ProcessingTimeMs,
		Status:           item.Status,
	}
	if item.ProcessedAt != nil {
		res.Timestamp = *item.ProcessedAt
	}
	if item.Status == StatusCompleted {
		res.Result = item.Result
	} else {
		msg := item.Error
		res.Error = &msg
	}
	return res
}

// StatusSnapshot is a point-in-time count of queue items by status
type StatusSnapshot struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}
