package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/insight-api/internal/events"
	"github.com/phrazzld/insight-api/internal/platform/logger"
)

// Stream connection timings
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Subscriber hands out per-owner subscriptions to terminal events.
type Subscriber interface {
	Subscribe(ownerID string) *events.Subscription
}

// EventStreamHandler pushes completion events to WebSocket clients.
type EventStreamHandler struct {
	hub      Subscriber
	upgrader websocket.Upgrader
}

// NewEventStreamHandler creates a handler streaming from hub. allowedOrigins
// lists the browser origins accepted on upgrade; an empty list accepts only
// same-host requests.
func NewEventStreamHandler(hub Subscriber, allowedOrigins ...string) *EventStreamHandler {
	h := &EventStreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
	return h
}

// Stream handles GET /api/events/stream. Each terminal event for the
// caller's owner id is sent as one JSON text frame.
func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerID(w, r)
	if !ok {
		return
	}
	log := logger.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := h.hub.Subscribe(ownerID)
	defer sub.Close()

	log.Info("event stream opened")
	closed := readPump(conn, log)
	writePump(conn, sub, closed, log)
	log.Info("event stream closed")
}

// readPump drains client frames so control messages are processed. The
// returned channel is closed when the client goes away.
func readPump(conn *websocket.Conn, log *slog.Logger) <-chan struct{} {
	done := make(chan struct{})

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("event stream read error", "error", err)
				}
				return
			}
		}
	}()
	return done
}

func writePump(conn *websocket.Conn, sub *events.Subscription, closed <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return

		case event, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Debug("event stream write failed",
					"error", err,
					"request_id", event.RequestID)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
