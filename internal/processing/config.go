package processing

import (
	"log/slog"
	"time"
)

// Config holds tuning parameters for the processing core
type Config struct {
	// MaxConcurrentRequests caps simultaneous invoker calls
	MaxConcurrentRequests int

	// BatchSize caps how many items a single dispatch round selects
	BatchSize int

	// MaxRetries is the retry budget given to each new queue item
	MaxRetries int

	// RetryDelayBase is multiplied by the retry count to get the backoff
	RetryDelayBase time.Duration

	// RetryDelayMax caps the backoff. Zero means uncapped.
	RetryDelayMax time.Duration

	// TickInterval is the scheduler's periodic wake-up
	TickInterval time.Duration

	// IdlePollInterval bounds how long the scheduler sleeps while retries
	// are waiting for their backoff to expire
	IdlePollInterval time.Duration

	// AwaitTimeout is the default wait budget for Process and AwaitResult
	AwaitTimeout time.Duration

	// Retention is how long terminal items are kept for introspection
	Retention time.Duration

	// InvocationTimeout bounds a single invoker call. Zero means no bound.
	InvocationTimeout time.Duration

	// EventBufferSize is how many lifecycle events may wait for the sinks
	// before new ones are dropped
	EventBufferSize int

	// EventTimeout bounds delivery of one event to the sinks. Zero means no
	// bound.
	EventTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 5,
		BatchSize:             10,
		MaxRetries:            DefaultMaxRetries,
		RetryDelayBase:        time.Second,
		RetryDelayMax:         0,
		TickInterval:          5 * time.Second,
		IdlePollInterval:      time.Second,
		AwaitTimeout:          30 * time.Second,
		Retention:             10 * time.Minute,
		InvocationTimeout:     0,
		EventBufferSize:       1024,
		EventTimeout:          5 * time.Second,
	}
}

// withDefaults replaces invalid values with their defaults, logging each
// substitution.
func (c Config) withDefaults(logger *slog.Logger) Config {
	def := DefaultConfig()
	fix := func(name string, bad bool, apply func()) {
		if bad {
			apply()
			logger.Warn("invalid processing config value, using default", "field", name)
		}
	}

	fix("max_concurrent_requests", c.MaxConcurrentRequests <= 0, func() {
		c.MaxConcurrentRequests = def.MaxConcurrentRequests
	})
	fix("batch_size", c.BatchSize <= 0, func() { c.BatchSize = def.BatchSize })
	fix("max_retries", c.MaxRetries < 0, func() { c.MaxRetries = def.MaxRetries })
	fix("retry_delay_base", c.RetryDelayBase < 0, func() { c.RetryDelayBase = def.RetryDelayBase })
	fix("retry_delay_max", c.RetryDelayMax < 0, func() { c.RetryDelayMax = def.RetryDelayMax })
	fix("tick_interval", c.TickInterval <= 0, func() { c.TickInterval = def.TickInterval })
	fix("idle_poll_interval", c.IdlePollInterval <= 0, func() { c.IdlePollInterval = def.IdlePollInterval })
	fix("await_timeout", c.AwaitTimeout <= 0, func() { c.AwaitTimeout = def.AwaitTimeout })
	fix("retention", c.Retention < 0, func() { c.Retention = def.Retention })
	fix("invocation_timeout", c.InvocationTimeout < 0, func() { c.InvocationTimeout = 0 })
	fix("event_buffer_size", c.EventBufferSize <= 0, func() { c.EventBufferSize = def.EventBufferSize })
	fix("event_timeout", c.EventTimeout < 0, func() { c.EventTimeout = def.EventTimeout })
	return c
}
