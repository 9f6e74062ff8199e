// Package main implements the entry point for the Insight API server, which
// queues AI analysis requests, runs them against the configured model with
// bounded concurrency and retries, and reports their results over HTTP and
// the configured event sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	migrate := flag.String("migrate", "", "run a database migration command (up, down, status, version) and exit")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration and either applies migrations or serves until a
// shutdown signal arrives.
func run(configPath, migrateCmd string) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrateCmd != "" {
		return runMigrations(ctx, cfg, migrateCmd, logger)
	}

	app, err := newApplication(ctx, cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
