package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/taskstate/internal/domain"
	"github.com/phrazzld/taskstate/internal/store"
)

// Common registry errors.
var (
	// ErrNoTasks is returned by Open when the owner has no tasks at all;
	// the caller closes the connection in response.
	ErrNoTasks = errors.New("owner has no tasks")

	// ErrUnknownConnection is returned when an operation references a
	// connection that was never opened or has already been closed.
	ErrUnknownConnection = errors.New("unknown connection")
)

// subscription is the registry's record of one live connection.
type subscription struct {
	ownerID uuid.UUID
	// watch is the ordered watch set; order is whatever the latest watch
	// request carried.
	watch []uuid.UUID
	// watchSet indexes watch for O(1) membership checks.
	watchSet map[uuid.UUID]struct{}
}

// Registry maps live subscriber connections to the set of jobs each one
// watches. It is the single owned piece of shared registry state: both
// the notification path (Resolve, Subscription) and the connection
// protocol handlers (Open, SetWatch, Close) are injected with the same
// instance. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*subscription
	store  store.TaskStore
	logger *slog.Logger
}

// NewRegistry creates an empty Registry backed by the given task store.
func NewRegistry(taskStore store.TaskStore, logger *slog.Logger) *Registry {
	return &Registry{
		subs:   make(map[uuid.UUID]*subscription),
		store:  taskStore,
		logger: logger.With("component", "subscription_registry"),
	}
}

// Open registers a new connection for the given owner. It fails with
// ErrNoTasks when the owner owns no tasks at all, in which case the
// caller should close the connection before reading any frame.
func (r *Registry) Open(ctx context.Context, connectionID, ownerID uuid.UUID) error {
	count, err := r.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to check owner tasks: %w", err)
	}
	if count == 0 {
		return ErrNoTasks
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[connectionID] = &subscription{
		ownerID:  ownerID,
		watchSet: make(map[uuid.UUID]struct{}),
	}

	r.logger.Debug("connection opened",
		"connection_id", connectionID,
		"owner_id", ownerID)
	return nil
}

// SetWatch replaces the connection's watch set with the given job IDs
// and returns a fresh snapshot of the watched records that belong to the
// connection's owner and have not been seen yet.
//
// The snapshot must be sent to the client immediately: if a job completes
// before the watch entry exists, the asynchronous push finds no
// subscriber and is lost, so this always-fresh synchronous read is what
// closes the registration race.
func (r *Registry) SetWatch(
	ctx context.Context,
	connectionID uuid.UUID,
	jobIDs []uuid.UUID,
) ([]*domain.TaskRecord, error) {
	r.mu.Lock()
	sub, ok := r.subs[connectionID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownConnection
	}

	// Replace, never merge: the latest request defines current interest.
	watch := make([]uuid.UUID, 0, len(jobIDs))
	watchSet := make(map[uuid.UUID]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		if _, dup := watchSet[id]; dup {
			continue
		}
		watch = append(watch, id)
		watchSet[id] = struct{}{}
	}
	sub.watch = watch
	sub.watchSet = watchSet
	ownerID := sub.ownerID
	r.mu.Unlock()

	seen := false
	records, err := r.store.Query(ctx, store.TaskFilter{
		JobIDs:  watch,
		OwnerID: &ownerID,
		Seen:    &seen,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load watch snapshot: %w", err)
	}

	r.logger.Debug("watch set replaced",
		"connection_id", connectionID,
		"watch_count", len(watch),
		"snapshot_count", len(records))
	return records, nil
}

// Resolve returns every open connection currently watching the given job.
func (r *Registry) Resolve(jobID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []uuid.UUID
	for connectionID, sub := range r.subs {
		if _, ok := sub.watchSet[jobID]; ok {
			connections = append(connections, connectionID)
		}
	}
	return connections
}

// Subscription returns the owner and current watch set of a connection.
// The returned slice is a copy.
func (r *Registry) Subscription(connectionID uuid.UUID) (uuid.UUID, []uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[connectionID]
	if !ok {
		return uuid.Nil, nil, false
	}

	watch := make([]uuid.UUID, len(sub.watch))
	copy(watch, sub.watch)
	return sub.ownerID, watch, true
}

// MarkSeenRequest lets a client assert it has observed the given jobs.
// It delegates to the store's filtered bulk update, which silently skips
// incomplete jobs and, scoped to the connection's owner, jobs belonging
// to anyone else. Exposed through the registry because the request
// arrives on the same connection protocol as watch requests.
func (r *Registry) MarkSeenRequest(
	ctx context.Context,
	connectionID uuid.UUID,
	jobIDs []uuid.UUID,
) (int64, error) {
	r.mu.RLock()
	sub, ok := r.subs[connectionID]
	r.mu.RUnlock()
	if !ok {
		return 0, ErrUnknownConnection
	}

	updated, err := r.store.MarkSeen(ctx, &sub.ownerID, jobIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to mark tasks seen: %w", err)
	}
	return updated, nil
}

// Close removes the connection's entry. It is idempotent and always safe
// to call, covering ungraceful disconnects where Close may run more than
// once or for an entry that never existed.
func (r *Registry) Close(connectionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[connectionID]; ok {
		delete(r.subs, connectionID)
		r.logger.Debug("connection closed", "connection_id", connectionID)
	}
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
