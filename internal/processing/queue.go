package processing

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is the in-memory collection of queue items keyed by request id.
// It owns the item state machine and the ordering policy. All mutations are
// serialized by a single mutex; readers receive copies.
type Queue struct {
	mu         sync.RWMutex
	items      map[uuid.UUID]*QueueItem
	seq        uint64
	maxRetries int
	clock      Clock
	logger     *slog.Logger

	// wake coalesces "new work may be ready" notifications for the scheduler
	wake chan struct{}
}

// NewQueue creates an empty queue. A maxRetries below zero falls back to
// DefaultMaxRetries; a nil clock uses the system clock.
func NewQueue(maxRetries int, clock Clock, logger *slog.Logger) *Queue {
	if maxRetries < 0 {
		logger.Warn("invalid max retries specified, using default",
			"specified_max_retries", maxRetries,
			"default_max_retries", DefaultMaxRetries)
		maxRetries = DefaultMaxRetries
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &Queue{
		items:      make(map[uuid.UUID]*QueueItem),
		maxRetries: maxRetries,
		clock:      clock,
		logger:     logger.With("component", "processing_queue"),
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue inserts a pending item for the request and returns its id.
// It never blocks. The request is expected to have been validated.
func (q *Queue) Enqueue(req ProcessingRequest) uuid.UUID {
	now := q.clock.Now()
	req.Metadata = maps.Clone(req.Metadata)
	req.Payload = slices.Clone(req.Payload)

	q.mu.Lock()
	q.seq++
	item := &QueueItem{
		ID:         uuid.New(),
		Request:    req,
		Status:     StatusPending,
		CreatedAt:  now,
		ReadyAt:    now,
		MaxRetries: q.maxRetries,
		seq:        q.seq,
	}
	q.items[item.ID] = item
	size := len(q.items)
	q.mu.Unlock()

	q.logger.Debug("request enqueued",
		"request_id", item.ID,
		"request_type", req.RequestType,
		"priority", req.Priority,
		"queue_len", size)

	q.signal()
	return item.ID
}

// Wake returns the channel signalled whenever new work may be ready.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// StatusSnapshot returns point-in-time counts by status.
func (q *Queue) StatusSnapshot() StatusSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var s StatusSnapshot
	for _, item := range q.items {
		switch item.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	s.Total = len(q.items)
	return s
}

// SelectReady returns up to limit pending items whose backoff has elapsed,
// ordered by priority descending and creation time ascending. It does not
// change any state.
func (q *Queue) SelectReady(limit int) []QueueItem {
	if limit <= 0 {
		return nil
	}
	now := q.clock.Now()

	q.mu.RLock()
	ready := make([]QueueItem, 0, min(limit, len(q.items)))
	for _, item := range q.items {
		if item.Status == StatusPending && !item.ReadyAt.After(now) {
			ready = append(ready, *item)
		}
	}
	q.mu.RUnlock()

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if ra, rb := a.Request.Priority.rank(), b.Request.Priority.rank(); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.seq < b.seq
	})

	if len(ready) > limit {
		ready = ready[:limit]
	}
	return ready
}

// NextReadyAt reports the earliest time a pending item becomes selectable.
// The second return value is false when nothing is pending.
func (q *Queue) NextReadyAt() (time.Time, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var next time.Time
	found := false
	for _, item := range q.items {
		if item.Status != StatusPending {
			continue
		}
		if !found || item.ReadyAt.Before(next) {
			next = item.ReadyAt
			found = true
		}
	}
	return next, found
}

// Get returns a copy of the item with the given id.
func (q *Queue) Get(id uuid.UUID) (QueueItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	item, ok := q.items[id]
	if !ok {
		return QueueItem{}, false
	}
	return *item, true
}

// Contains reports whether an item with the given id is still held.
func (q *Queue) Contains(id uuid.UUID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.items[id]
	return ok
}

// PurgeTerminalOlderThan removes completed and failed items processed more
// than d ago. It returns the number of items removed.
func (q *Queue) PurgeTerminalOlderThan(d time.Duration) int {
	now := q.clock.Now()

	q.mu.Lock()
	removed := 0
	for id, item := range q.items {
		if !item.Status.IsTerminal() || item.ProcessedAt == nil {
			continue
		}
		if now.Sub(*item.ProcessedAt) > d {
			delete(q.items, id)
			removed++
		}
	}
	remaining := len(q.items)
	q.mu.Unlock()

	if removed > 0 {
		q.logger.Info("purged terminal items",
			"purged_count", removed,
			"retention", d,
			"queue_len", remaining)
	}
	return removed
}

// markProcessing moves a pending item to processing. It returns false when
// the item is missing or not pending, which prevents double dispatch.
func (q *Queue) markProcessing(id uuid.UUID) (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok || item.Status != StatusPending {
		return QueueItem{}, false
	}
	item.Status = StatusProcessing
	return *item, true
}

// complete records a successful invocation. Items that are not processing
// are left untouched.
func (q *Queue) complete(id uuid.UUID, result json.RawMessage, elapsedMs int64) (*ProcessingResult, bool) {
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok || item.Status != StatusProcessing {
		return nil, false
	}
	item.Status = StatusCompleted
	item.Result = result
	item.Error = ""
	item.ProcessingTimeMs = elapsedMs
	item.ProcessedAt = &now
	return resultOf(item), true
}

// failOutcome describes what fail did to an item
type failOutcome struct {
	item   QueueItem
	retry  bool
	delay  time.Duration
	result *ProcessingResult
}

// fail records a failed invocation. Transient failures re-arm the item as
// pending after backoff(retryCount) while budget remains; permanent failures
// and exhausted budgets are terminal. The second return value is false when
// the item is not processing.
func (q *Queue) fail(
	id uuid.UUID,
	cause error,
	permanent bool,
	elapsedMs int64,
	backoff func(retryCount int) time.Duration,
) (failOutcome, bool) {
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok || item.Status != StatusProcessing {
		return failOutcome{}, false
	}

	item.ProcessingTimeMs = elapsedMs
	if !permanent && item.RetryCount < item.MaxRetries {
		item.RetryCount++
		delay := backoff(item.RetryCount)
		item.Status = StatusPending
		item.ReadyAt = now.Add(delay)
		item.Error = cause.Error()
		return failOutcome{item: *item, retry: true, delay: delay}, true
	}

	item.Status = StatusFailed
	item.Error = cause.Error()
	item.ProcessedAt = &now
	return failOutcome{item: *item, result: resultOf(item)}, true
}

// release returns a processing item to pending without touching its retry
// budget. It is used when an invocation was interrupted by shutdown rather
// than failed by the invoker.
func (q *Queue) release(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok || item.Status != StatusProcessing {
		return false
	}
	item.Status = StatusPending
	return true
}

// lookupResult returns the terminal result for id, or nil while the item is
// still pending or processing. exists is false when the id is not held.
func (q *Queue) lookupResult(id uuid.UUID) (res *ProcessingResult, exists bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	item, ok := q.items[id]
	if !ok {
		return nil, false
	}
	if !item.Status.IsTerminal() {
		return nil, true
	}
	return resultOf(item), true
}
