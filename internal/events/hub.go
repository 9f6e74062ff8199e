package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultHubBufferSize is the default per-subscriber event buffer
const DefaultHubBufferSize = 64

// Hub fans terminal events out to live subscribers, keyed by owner id. It is
// the in-process end of the real-time channel used by UI listeners. A slow
// subscriber never blocks the emitter: when its buffer is full the event is
// dropped for that subscriber.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[uuid.UUID]*Subscription
	bufferSize int
	logger     *slog.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

// HubStats reports hub activity counters
type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// Subscription receives terminal events for a single owner.
type Subscription struct {
	id      uuid.UUID
	ownerID string
	ch      chan *Event
	hub     *Hub
	once    sync.Once
}

// NewHub creates a Hub. A non-positive bufferSize uses DefaultHubBufferSize.
func NewHub(logger *slog.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultHubBufferSize
	}
	return &Hub{
		subs:       make(map[string]map[uuid.UUID]*Subscription),
		bufferSize: bufferSize,
		logger:     logger.With("component", "event_hub"),
	}
}

// Subscribe registers a subscriber for the owner's terminal events.
func (h *Hub) Subscribe(ownerID string) *Subscription {
	sub := &Subscription{
		id:      uuid.New(),
		ownerID: ownerID,
		ch:      make(chan *Event, h.bufferSize),
		hub:     h,
	}

	h.mu.Lock()
	owned, ok := h.subs[ownerID]
	if !ok {
		owned = make(map[uuid.UUID]*Subscription)
		h.subs[ownerID] = owned
	}
	owned[sub.id] = sub
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "subscriber_id", sub.id, "owner_id", ownerID)
	return sub
}

// HandleEvent implements EventHandler. Non-terminal events are ignored.
func (h *Hub) HandleEvent(ctx context.Context, event *Event) error {
	if !event.Terminal() {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[event.OwnerID] {
		select {
		case sub.ch <- event:
			h.published.Add(1)
		default:
			h.dropped.Add(1)
			h.logger.Warn("subscriber buffer full, dropping event",
				"subscriber_id", sub.id,
				"owner_id", event.OwnerID,
				"request_id", event.RequestID)
		}
	}
	return nil
}

// Stats returns hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := 0
	for _, owned := range h.subs {
		n += len(owned)
	}
	h.mu.RUnlock()

	return HubStats{
		Subscribers: n,
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close removes and closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[uuid.UUID]*Subscription)
	h.mu.Unlock()

	for _, owned := range all {
		for _, sub := range owned {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if owned, ok := h.subs[sub.ownerID]; ok {
		delete(owned, sub.id)
		if len(owned) == 0 {
			delete(h.subs, sub.ownerID)
		}
	}
	h.mu.Unlock()
}

// Events returns the channel of terminal events. It is closed when the
// subscription or the hub is closed.
func (s *Subscription) Events() <-chan *Event {
	return s.ch
}

// OwnerID returns the owner this subscription listens for.
func (s *Subscription) OwnerID() string {
	return s.ownerID
}

// Close unsubscribes and closes the event channel. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.once.Do(func() { close(s.ch) })
}

var _ EventHandler = (*Hub)(nil)
