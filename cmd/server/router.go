package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/insight-api/internal/api"
	apiMiddleware "github.com/phrazzld/insight-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	var handlerOpts []api.RequestHandlerOption
	if app.transitions != nil {
		handlerOpts = append(handlerOpts, api.WithTransitions(app.transitions))
	}
	requestHandler := api.NewRequestHandler(app.service, handlerOpts...)
	streamHandler := api.NewEventStreamHandler(app.hub)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/requests", requestHandler.Submit)
		r.Post("/requests/process", requestHandler.Process)
		r.Post("/requests/batch", requestHandler.BatchProcess)
		r.Get("/requests/{id}", requestHandler.GetRequest)
		r.Get("/requests/{id}/result", requestHandler.AwaitResult)
		if requestHandler.HasTransitions() {
			r.Get("/requests/{id}/transitions", requestHandler.ListTransitions)
		}

		r.Get("/queue/status", requestHandler.QueueStatus)
		r.Delete("/queue/completed", requestHandler.ClearCompleted)

		r.Get("/events/stream", streamHandler.Stream)
	})

	r.Get("/metrics", api.NewMetricsHandler(app.telemetry).Metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
