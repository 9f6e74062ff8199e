package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/insight-api/internal/events"
	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Client is the subset of the go-redis client used by Publisher.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Close() error
}

// Config holds the connection settings.
type Config struct {
	Addr    string
	Channel string
}

// Publisher implements events.EventHandler over Redis PUBLISH.
type Publisher struct {
	client  Client
	channel string
	logger  *slog.Logger
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	pub := NewPublisherWithClient(client, cfg.Channel, logger)
	pub.logger.Info("redis publisher connected", "addr", cfg.Addr, "channel", cfg.Channel)
	return pub, nil
}

// NewPublisherWithClient creates a Publisher over an existing client.
func NewPublisherWithClient(client Client, channel string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_publisher"),
	}
}

// HandleEvent implements events.EventHandler.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	p.logger.Debug("event published",
		"event_type", event.Type,
		"request_id", event.RequestID,
		"receivers", receivers)
	return nil
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

var _ events.EventHandler = (*Publisher)(nil)
