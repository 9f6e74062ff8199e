package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phrazzld/insight-api/internal/events"
	kafkago "github.com/segmentio/kafka-go"
)

// Header keys attached to every published message
const (
	HeaderEventType = "event-type"
	HeaderOwnerID   = "owner-id"
)

// ErrPublisherClosed is returned when publishing after Close
var ErrPublisherClosed = errors.New("kafka publisher closed")

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config holds the writer settings.
type Config struct {
	Brokers []string
	Topic   string

	// Async makes WriteMessages return immediately; delivery errors are
	// logged from the completion callback.
	Async        bool
	WriteTimeout time.Duration
}

// Publisher implements events.EventHandler by writing each event as a JSON
// message keyed by request id. Keying by request id keeps the transitions of
// one request on one partition, in order.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
	closed atomic.Bool
}

// NewPublisher creates a Publisher backed by a kafka.Writer.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	log := logger.With("component", "kafka_publisher")

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
		Async:                  cfg.Async,
	}
	if cfg.Async {
		writer.Completion = func(messages []kafkago.Message, err error) {
			if err != nil {
				log.Error("async event delivery failed",
					"error", err,
					"topic", cfg.Topic,
					"messages", len(messages))
			}
		}
	}

	log.Info("kafka publisher configured",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"async", cfg.Async)

	return &Publisher{writer: writer, logger: log}
}

// NewPublisherWithWriter creates a Publisher over an existing writer.
func NewPublisherWithWriter(writer MessageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: writer,
		logger: logger.With("component", "kafka_publisher"),
	}
}

// HandleEvent implements events.EventHandler.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.Event) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	value, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.RequestID.String()),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
			{Key: HeaderOwnerID, Value: []byte(event.OwnerID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	p.logger.Debug("event published",
		"event_type", event.Type,
		"request_id", event.RequestID)
	return nil
}

// Close flushes pending messages and closes the writer. Later events are
// rejected with ErrPublisherClosed.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Info("closing kafka publisher")
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

var _ events.EventHandler = (*Publisher)(nil)
