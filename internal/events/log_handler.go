package events

import (
	"context"
	"log/slog"
)

// LogHandler records every transition as a structured log line.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler writing to logger.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	return &LogHandler{logger: logger.With("component", "transition_log")}
}

// HandleEvent implements EventHandler.
func (h *LogHandler) HandleEvent(ctx context.Context, event *Event) error {
	level := slog.LevelDebug
	switch event.Type {
	case TypeRequestFailed:
		level = slog.LevelWarn
	case TypeRequestCompleted, TypeRequestRetrying:
		level = slog.LevelInfo
	}

	attrs := []slog.Attr{
		slog.String("event_type", string(event.Type)),
		slog.String("request_id", event.RequestID.String()),
		slog.String("owner_id", event.OwnerID),
		slog.String("request_type", event.RequestType),
		slog.String("status", event.Status),
		slog.Int("retry_count", event.RetryCount),
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Terminal() {
		attrs = append(attrs, slog.Int64("processing_time_ms", event.ProcessingTimeMs))
	}

	h.logger.LogAttrs(ctx, level, "request transition", attrs...)
	return nil
}

var _ EventHandler = (*LogHandler)(nil)
