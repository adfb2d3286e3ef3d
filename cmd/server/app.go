package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/taskstate/internal/config"
	"github.com/phrazzld/taskstate/internal/events"
	"github.com/phrazzld/taskstate/internal/notifier"
	"github.com/phrazzld/taskstate/internal/platform/postgres"
	"github.com/phrazzld/taskstate/internal/registry"
	"github.com/phrazzld/taskstate/internal/service/auth"
	"github.com/phrazzld/taskstate/internal/store"
	"github.com/phrazzld/taskstate/internal/tracker"
	"github.com/phrazzld/taskstate/internal/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// application holds the server's wired dependencies.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Auth
	jwtService auth.JWTService

	// Stores
	taskStore store.TaskStore

	// Event system
	eventEmitter *events.InMemoryEmitter

	// Task-state components
	tracker  *tracker.Tracker
	registry *registry.Registry
	notifier *notifier.Notifier
	hub      *ws.Hub
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger,
// and database connection that must be established before application
// initialization.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize JWT service
	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	// Initialize stores
	app.taskStore = postgres.NewPostgresTaskStore(db)

	// Initialize the subscriber side: connection hub, subscription
	// registry, and the notifier that bridges change events onto live
	// connections.
	app.hub = ws.NewHub(logger)
	app.registry = registry.NewRegistry(app.taskStore, logger)
	app.notifier = notifier.NewNotifier(app.registry, app.taskStore, app.hub, logger)

	// Initialize the event emitter and register the notifier as its
	// single consumer.
	app.eventEmitter = events.NewInMemoryEmitter(logger)
	app.eventEmitter.RegisterHandler(app.notifier)

	// Initialize the lifecycle tracker fed by the job-queue callbacks.
	app.tracker = tracker.NewTracker(
		app.taskStore,
		app.eventEmitter,
		tracker.PassthroughOwnerResolver{},
		logger,
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the HTTP server and blocks until the context is cancelled
// or the server fails.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server cleanly: %w", err)
	}

	// Let in-flight pushes drain before the process exits.
	app.notifier.Wait()
	return nil
}
