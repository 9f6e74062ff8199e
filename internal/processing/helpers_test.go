package processing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/insight-api/internal/events"
	"github.com/phrazzld/insight-api/internal/invoker"
)

// setupTestLogger creates a logger that discards output
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced Clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingEmitter keeps every emitted event
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
}

func (e *recordingEmitter) EmitEvent(ctx context.Context, event *events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// typesFor returns the event types recorded for one request, in order
func (e *recordingEmitter) typesFor(id uuid.UUID) []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Type
	for _, ev := range e.events {
		if ev.RequestID == id {
			out = append(out, ev.Type)
		}
	}
	return out
}

func newRequest(priority Priority) ProcessingRequest {
	return ProcessingRequest{
		RequestType: RequestTypePatternAnalysis,
		OwnerID:     "owner-1",
		Payload:     json.RawMessage(`{"tasks":[]}`),
		Priority:    priority,
	}
}

func okResult() *invoker.InvocationResult {
	return &invoker.InvocationResult{Result: json.RawMessage(`{"ok":true}`), ProcessingTimeMs: 3}
}

// succeedingInvoker always returns okResult
var succeedingInvoker = invoker.Func(func(ctx context.Context, inv invoker.Invocation) (*invoker.InvocationResult, error) {
	return okResult(), nil
})

// fastConfig shrinks every interval so loop tests finish quickly
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelayBase = 5 * time.Millisecond
	cfg.TickInterval = 20 * time.Millisecond
	cfg.IdlePollInterval = 5 * time.Millisecond
	cfg.AwaitTimeout = 2 * time.Second
	return cfg
}
