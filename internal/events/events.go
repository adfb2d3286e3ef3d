package events

import (
	"context"
	"time"

	"github.com/phrazzld/taskstate/internal/domain"
)

// ChangeKind distinguishes how a task record changed. The notifier applies
// different delivery rules to each: lifecycle transitions always push,
// progress writes are throttled to exact multiples of ten.
type ChangeKind string

const (
	// ChangeKindLifecycle marks a status transition recorded by the
	// lifecycle tracker (enqueued, delayed, running, done, failed, skipped).
	ChangeKindLifecycle ChangeKind = "lifecycle"

	// ChangeKindProgress marks a progress write through the store's
	// direct path.
	ChangeKindProgress ChangeKind = "progress"
)

// TaskChangedEvent carries the post-write snapshot of a task record.
// It is emitted synchronously after every successful upsert; handlers
// must treat it as read-only.
type TaskChangedEvent struct {
	Kind       ChangeKind
	Record     *domain.TaskRecord
	OccurredAt time.Time
}

// NewTaskChangedEvent creates a TaskChangedEvent for the given record.
func NewTaskChangedEvent(kind ChangeKind, record *domain.TaskRecord) *TaskChangedEvent {
	return &TaskChangedEvent{
		Kind:       kind,
		Record:     record,
		OccurredAt: time.Now().UTC(),
	}
}

// Handler defines an interface for components that consume task change
// events. Handlers are invoked in-line with the write that produced the
// event; a handler error never rolls back that write.
type Handler interface {
	// HandleTaskChanged processes the given event within the provided
	// context. Returns an error if the event cannot be handled.
	HandleTaskChanged(ctx context.Context, event *TaskChangedEvent) error
}

// Emitter defines an interface for components that emit task change
// events. This lets the tracker publish changes without direct knowledge
// of who consumes them.
type Emitter interface {
	// EmitTaskChanged publishes the given event to all registered handlers.
	EmitTaskChanged(ctx context.Context, event *TaskChangedEvent) error
}
