package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// INSIGHT_SERVER_PORT for server.port.
const EnvPrefix = "INSIGHT"

// Load configuration from environment variables and optionally a config.yaml
// in the working directory or ./config. Environment variables take
// precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFile is Load with an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("auth.token_lifetime", "60m")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.burst", 5)

	v.SetDefault("processing.max_concurrent_requests", 5)
	v.SetDefault("processing.batch_size", 10)
	v.SetDefault("processing.max_retries", 3)
	v.SetDefault("processing.retry_delay_base", "1s")
	v.SetDefault("processing.retry_delay_max", "0s")
	v.SetDefault("processing.tick_interval", "5s")
	v.SetDefault("processing.idle_poll_interval", "1s")
	v.SetDefault("processing.await_timeout", "30s")
	v.SetDefault("processing.retention", "10m")
	v.SetDefault("processing.invocation_timeout", "0s")
	v.SetDefault("processing.event_buffer_size", 1024)
	v.SetDefault("processing.event_timeout", "5s")

	v.SetDefault("events.kafka_topic", "insight.request-events")
	v.SetDefault("events.redis_channel", "insight:request-events")
	v.SetDefault("events.hub_buffer_size", 64)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"llm.gemini_api_key",
		"events.kafka_brokers",
		"events.redis_addr",
	} {
		_ = v.BindEnv(key)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// A comma separated env value arrives as a single element
	if len(cfg.Events.KafkaBrokers) == 1 && strings.Contains(cfg.Events.KafkaBrokers[0], ",") {
		cfg.Events.KafkaBrokers = strings.Split(cfg.Events.KafkaBrokers[0], ",")
	}
	for i, b := range cfg.Events.KafkaBrokers {
		cfg.Events.KafkaBrokers[i] = strings.TrimSpace(b)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
