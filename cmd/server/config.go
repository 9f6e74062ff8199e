package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/insight-api/internal/config"
	"github.com/phrazzld/insight-api/internal/platform/logger"
	"github.com/phrazzld/insight-api/internal/processing"
)

// loadAppConfig loads the application configuration from environment
// variables and the optional config file.
func loadAppConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupAppLogger configures the process-wide logger from the server settings
// and logs the configuration summary.
func setupAppLogger(cfg *config.Config) (*slog.Logger, error) {
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)
	l.Debug("Optional integrations",
		"database", cfg.Database.URL != "",
		"kafka", len(cfg.Events.KafkaBrokers) > 0,
		"redis", cfg.Events.RedisAddr != "")

	return l, nil
}

// processingConfig converts the loaded settings into the core's Config.
func processingConfig(cfg config.ProcessingConfig) processing.Config {
	return processing.Config{
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		BatchSize:             cfg.BatchSize,
		MaxRetries:            cfg.MaxRetries,
		RetryDelayBase:        cfg.RetryDelayBase,
		RetryDelayMax:         cfg.RetryDelayMax,
		TickInterval:          cfg.TickInterval,
		IdlePollInterval:      cfg.IdlePollInterval,
		AwaitTimeout:          cfg.AwaitTimeout,
		Retention:             cfg.Retention,
		InvocationTimeout:     cfg.InvocationTimeout,
		EventBufferSize:       cfg.EventBufferSize,
		EventTimeout:          cfg.EventTimeout,
	}
}
