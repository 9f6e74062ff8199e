package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
	Processing ProcessingConfig `mapstructure:"processing" validate:"required"`
	Events     EventsConfig     `mapstructure:"events"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL disables the transition audit log.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`

	// RequestsPerMinute and Burst shape the token bucket in front of the model
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"gt=0"`
	Burst             int `mapstructure:"burst" validate:"gt=0"`
}

// ProcessingConfig tunes the asynchronous request processing core.
type ProcessingConfig struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests" validate:"gt=0"`
	BatchSize             int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxRetries            int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelayBase        time.Duration `mapstructure:"retry_delay_base" validate:"gte=0"`
	RetryDelayMax         time.Duration `mapstructure:"retry_delay_max" validate:"gte=0"`
	TickInterval          time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	IdlePollInterval      time.Duration `mapstructure:"idle_poll_interval" validate:"gt=0"`
	AwaitTimeout          time.Duration `mapstructure:"await_timeout" validate:"gt=0"`
	Retention             time.Duration `mapstructure:"retention" validate:"gte=0"`
	InvocationTimeout     time.Duration `mapstructure:"invocation_timeout" validate:"gte=0"`

	// EventBufferSize and EventTimeout shape delivery to the event sinks
	EventBufferSize int           `mapstructure:"event_buffer_size" validate:"gt=0"`
	EventTimeout    time.Duration `mapstructure:"event_timeout" validate:"gte=0"`
}

// EventsConfig selects the transition sinks. Empty broker and address
// settings disable the corresponding sink.
type EventsConfig struct {
	KafkaBrokers  []string `mapstructure:"kafka_brokers" validate:"omitempty,dive,hostname_port"`
	KafkaTopic    string   `mapstructure:"kafka_topic" validate:"required_with=KafkaBrokers"`
	RedisAddr     string   `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisChannel  string   `mapstructure:"redis_channel" validate:"required_with=RedisAddr"`
	HubBufferSize int      `mapstructure:"hub_buffer_size" validate:"gt=0"`
}
