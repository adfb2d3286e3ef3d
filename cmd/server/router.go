package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/taskstate/internal/api"
	apiMiddleware "github.com/phrazzld/taskstate/internal/api/middleware"
	"github.com/phrazzld/taskstate/internal/ws"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	taskHandler := api.NewTaskHandler(app.taskStore, app.logger)
	hooksHandler := api.NewHooksHandler(app.tracker, app.logger)
	wsHandler := ws.NewHandler(app.registry, app.hub, app.logger)

	// Job-queue callback surface, consumed by queue workers.
	r.Route("/internal/queue", func(r chi.Router) {
		r.Post("/enqueued", hooksHandler.Enqueued)
		r.Post("/started", hooksHandler.Started)
		r.Post("/finished", hooksHandler.Finished)
		r.Post("/skipped", hooksHandler.Skipped)
		r.Post("/progress", hooksHandler.Progress)
	})

	// Subscriber surface, authenticated per connection.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Get("/ws/get-task-status", wsHandler.WatchStatus)
		r.Get("/ws/set-task-seen", wsHandler.MarkSeen)
		r.Get("/tasks", taskHandler.ListForDisplay)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
