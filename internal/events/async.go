package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrEventDropped is returned when the buffer of an AsyncEmitter is full
	ErrEventDropped = errors.New("event buffer full, event dropped")

	// ErrEmitterClosed is returned when emitting after Close
	ErrEmitterClosed = errors.New("event emitter closed")
)

type queuedEvent struct {
	ctx   context.Context
	event *Event
}

// AsyncEmitter hands events to a wrapped emitter from a single goroutine,
// so EmitEvent never waits on sink I/O. Events reach the wrapped emitter in
// the order they were accepted. When the buffer is full new events are
// dropped.
type AsyncEmitter struct {
	next    EventEmitter
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}

	dropped atomic.Int64
}

// NewAsyncEmitter starts the delivery goroutine. A non-positive bufferSize
// falls back to 1024; a non-positive timeout leaves each delivery unbounded.
func NewAsyncEmitter(next EventEmitter, bufferSize int, timeout time.Duration, logger *slog.Logger) *AsyncEmitter {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	e := &AsyncEmitter{
		next:    next,
		timeout: timeout,
		logger:  logger.With("component", "async_event_emitter"),
		queue:   make(chan queuedEvent, bufferSize),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// EmitEvent queues the event for delivery. The context's values are kept
// but its cancellation is not, since delivery happens after the caller has
// moved on.
func (e *AsyncEmitter) EmitEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrEmitterClosed
	}

	select {
	case e.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		n := e.dropped.Add(1)
		e.logger.Warn("event buffer full, dropping event",
			"event_type", event.Type,
			"request_id", event.RequestID,
			"dropped_total", n)
		return ErrEventDropped
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (e *AsyncEmitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close stops accepting events and waits until the buffered ones have been
// delivered. It is safe to call more than once.
func (e *AsyncEmitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	<-e.done
	return nil
}

func (e *AsyncEmitter) run() {
	defer close(e.done)

	for qe := range e.queue {
		e.deliver(qe)
	}
}

func (e *AsyncEmitter) deliver(qe queuedEvent) {
	ctx := qe.ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.next.EmitEvent(ctx, qe.event); err != nil {
		e.logger.Debug("event sink reported an error",
			"event_type", qe.event.Type,
			"request_id", qe.event.RequestID,
			"error", err)
	}
}

// Ensure AsyncEmitter implements EventEmitter
var _ EventEmitter = (*AsyncEmitter)(nil)
