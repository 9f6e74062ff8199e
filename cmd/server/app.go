package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phrazzld/insight-api/internal/auth"
	"github.com/phrazzld/insight-api/internal/config"
	"github.com/phrazzld/insight-api/internal/events"
	"github.com/phrazzld/insight-api/internal/invoker"
	"github.com/phrazzld/insight-api/internal/platform/gemini"
	"github.com/phrazzld/insight-api/internal/platform/kafka"
	"github.com/phrazzld/insight-api/internal/platform/postgres"
	"github.com/phrazzld/insight-api/internal/platform/redis"
	"github.com/phrazzld/insight-api/internal/platform/telemetry"
	"github.com/phrazzld/insight-api/internal/processing"
)

// telemetryShutdownTimeout bounds the final flush of the OTel providers
const telemetryShutdownTimeout = 5 * time.Second

// namedCloser is a sink that must be closed on shutdown
type namedCloser struct {
	name   string
	closer io.Closer
}

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config    *config.Config
	logger    *slog.Logger
	db        *sql.DB
	telemetry *telemetry.Provider

	jwtService  auth.JWTService
	invoker     invoker.Invoker
	emitter     *events.InMemoryEventEmitter
	hub         *events.Hub
	transitions *postgres.TransitionStore
	service     *processing.Service

	// closers run in reverse registration order
	closers []namedCloser
}

// newApplication creates a new application instance with all dependencies
// initialized. A nil inv selects the Gemini invoker.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	inv invoker.Invoker,
) (*application, error) {
	app := &application{
		config:    cfg,
		logger:    logger,
		telemetry: telemetry.New(logger),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime", cfg.Auth.TokenLifetime)

	if inv == nil {
		inv, err = gemini.NewInvoker(ctx, logger.With("component", "gemini_invoker"), cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM invoker: %w", err)
		}
		logger.Info("LLM invoker initialized", "model", cfg.LLM.ModelName)
	}
	app.invoker = inv

	app.db, err = setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if app.db != nil {
		app.closers = append(app.closers, namedCloser{name: "database", closer: app.db})
	}

	if err := app.setupEventSinks(ctx); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to set up event sinks: %w", err)
	}

	app.service, err = processing.NewService(
		app.invoker,
		app.emitter,
		processingConfig(cfg.Processing),
		logger,
		processing.WithInstrumentation(processing.NewInstrumentationWith(
			app.telemetry.Meter(processing.InstrumentationName),
			app.telemetry.Tracer(processing.InstrumentationName),
		)),
	)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create processing service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupEventSinks creates the emitter and registers every configured sink.
// The hub is always registered since it backs the WebSocket stream.
func (app *application) setupEventSinks(ctx context.Context) error {
	cfg := app.config.Events
	app.emitter = events.NewInMemoryEventEmitter(app.logger)

	app.emitter.RegisterHandler("log", events.NewLogHandler(app.logger))

	app.hub = events.NewHub(app.logger, cfg.HubBufferSize)
	app.emitter.RegisterHandler("hub", app.hub)

	if app.db != nil {
		app.transitions = postgres.NewTransitionStore(app.db, app.logger)
		app.emitter.RegisterHandler("postgres", app.transitions)
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Async:   true,
		}, app.logger)
		app.emitter.RegisterHandler("kafka", pub)
		app.closers = append(app.closers, namedCloser{name: "kafka", closer: pub})
	}

	if cfg.RedisAddr != "" {
		pub, err := redis.NewPublisher(ctx, redis.Config{
			Addr:    cfg.RedisAddr,
			Channel: cfg.RedisChannel,
		}, app.logger)
		if err != nil {
			return err
		}
		app.emitter.RegisterHandler("redis", pub)
		app.closers = append(app.closers, namedCloser{name: "redis", closer: pub})
	}
	return nil
}

// Run starts the processing service and the HTTP server, and blocks until
// ctx is cancelled or the server fails. The service outlives ctx so that
// requests still being served during shutdown can complete; cleanup stops it.
func (app *application) Run(ctx context.Context) error {
	if err := app.service.Start(context.WithoutCancel(ctx)); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start processing service: %w", err)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources: the
// processing service drains in-flight invocations before the sinks they
// publish to are closed.
func (app *application) cleanup() {
	if app.service != nil {
		app.service.Stop()
	}
	if app.hub != nil {
		app.hub.Close()
	}

	for i := len(app.closers) - 1; i >= 0; i-- {
		c := app.closers[i]
		if err := c.closer.Close(); err != nil {
			app.logger.Error("Error closing resource", "resource", c.name, "error", err)
		}
	}
	app.closers = nil

	if app.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		if err := app.telemetry.Shutdown(ctx); err != nil {
			app.logger.Error("Error shutting down telemetry", "error", err)
		}
		cancel()
		app.telemetry = nil
	}

	app.logger.Info("Application shutdown completed")
}
