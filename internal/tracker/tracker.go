package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskstate/internal/domain"
	"github.com/phrazzld/taskstate/internal/events"
	"github.com/phrazzld/taskstate/internal/store"
)

// JobEvent is the slice of a job-queue lifecycle callback this package
// cares about: the job's identity, its queue metadata, and the raw
// correlation bundle the submitter attached (if any).
type JobEvent struct {
	JobID     uuid.UUID       `json:"job_id"`
	ActorName string          `json:"actor_name"`
	QueueName string          `json:"queue_name"`
	ForState  json.RawMessage `json:"for_state,omitempty"`
}

// OwnerResolver resolves an owner identifier from a correlation bundle
// to a persisted identity. Resolution is best-effort: an unresolvable
// owner yields the null identity, never an error that would block
// tracking.
type OwnerResolver interface {
	Resolve(ctx context.Context, ownerID uuid.UUID) (uuid.NullUUID, error)
}

// PassthroughOwnerResolver accepts any non-nil owner identifier as-is.
// Used when the surrounding application has already authenticated the
// identifier at job submission time.
type PassthroughOwnerResolver struct{}

// Resolve returns the identifier unchanged, or the null identity for a
// nil UUID.
func (PassthroughOwnerResolver) Resolve(
	ctx context.Context,
	ownerID uuid.UUID,
) (uuid.NullUUID, error) {
	if ownerID == uuid.Nil {
		return uuid.NullUUID{}, nil
	}
	return uuid.NullUUID{UUID: ownerID, Valid: true}, nil
}

// Tracker intercepts job-queue lifecycle callbacks and maintains one
// TaskRecord per tracked job. Tracking is opt-in: a callback without a
// usable correlation bundle is a no-op. Every successful upsert emits a
// TaskChanged event; emit failures are logged and swallowed so a
// notification fault can never fail the upsert or, transitively, the job.
type Tracker struct {
	store   store.TaskStore
	emitter events.Emitter
	owners  OwnerResolver
	logger  *slog.Logger
}

// NewTracker creates a Tracker. A nil resolver falls back to the
// passthrough resolver.
func NewTracker(
	taskStore store.TaskStore,
	emitter events.Emitter,
	owners OwnerResolver,
	logger *slog.Logger,
) *Tracker {
	if owners == nil {
		owners = PassthroughOwnerResolver{}
	}
	return &Tracker{
		store:   taskStore,
		emitter: emitter,
		owners:  owners,
		logger:  logger.With("component", "lifecycle_tracker"),
	}
}

// OnEnqueued records that a job entered the queue. A positive delay puts
// the record in the delayed state instead of enqueued.
func (t *Tracker) OnEnqueued(ctx context.Context, ev JobEvent, delay time.Duration) error {
	status := domain.StatusEnqueued
	if delay > 0 {
		status = domain.StatusDelayed
	}
	return t.track(ctx, ev, status)
}

// OnStarted records that a worker began executing the job.
func (t *Tracker) OnStarted(ctx context.Context, ev JobEvent) error {
	return t.track(ctx, ev, domain.StatusRunning)
}

// OnFinished records the job's terminal outcome: failed when the queue
// reported an error, done otherwise.
func (t *Tracker) OnFinished(ctx context.Context, ev JobEvent, jobErr error) error {
	status := domain.StatusDone
	if jobErr != nil {
		status = domain.StatusFailed
	}
	return t.track(ctx, ev, status)
}

// OnSkipped records that the queue skipped the job.
func (t *Tracker) OnSkipped(ctx context.Context, ev JobEvent) error {
	return t.track(ctx, ev, domain.StatusSkipped)
}

// ReportProgress writes a progress value through the store's direct path
// and emits a progress-kind change event. A job without a record (never
// tracked, or already cleaned up) is a soft no-op.
func (t *Tracker) ReportProgress(ctx context.Context, jobID uuid.UUID, progress int) error {
	record, err := t.store.UpdateProgress(ctx, jobID, progress)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			t.logger.Debug("progress reported for untracked job", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("failed to record progress: %w", err)
	}

	t.emit(ctx, events.NewTaskChangedEvent(events.ChangeKindProgress, record))
	return nil
}

// track is the shared upsert path behind the four lifecycle hooks.
func (t *Tracker) track(ctx context.Context, ev JobEvent, status domain.Status) error {
	meta, ok := domain.DecodeTrackingMeta(ev.ForState)
	if !ok {
		t.logger.Debug("no usable correlation bundle, not tracking job state",
			"job_id", ev.JobID,
			"actor_name", ev.ActorName)
		return nil
	}

	fields := store.TaskFields{
		Status:      status,
		ActorName:   ev.ActorName,
		QueueName:   ev.QueueName,
		OwnerID:     t.resolveOwner(ctx, meta),
		Description: meta.Description,
		ModelName:   meta.ModelName,
		AppName:     meta.AppName,
	}
	if fields.Description == "" {
		fields.Description = "Task"
	}

	record, err := t.store.Upsert(ctx, ev.JobID, fields)
	if err != nil {
		return fmt.Errorf("failed to record job transition to %s: %w", status, err)
	}

	t.logger.Debug("recorded job transition",
		"job_id", ev.JobID,
		"status", status)

	t.emit(ctx, events.NewTaskChangedEvent(events.ChangeKindLifecycle, record))
	return nil
}

// resolveOwner looks up the bundle's owner identifier, if any. Lookup
// failure yields the null identity: a job must still be tracked even if
// its owner cannot be resolved.
func (t *Tracker) resolveOwner(ctx context.Context, meta *domain.TrackingMeta) uuid.NullUUID {
	if meta.OwnerID == nil {
		return uuid.NullUUID{}
	}

	owner, err := t.owners.Resolve(ctx, *meta.OwnerID)
	if err != nil {
		t.logger.Debug("owner resolution failed, tracking without owner",
			"owner_id", *meta.OwnerID,
			"error", err)
		return uuid.NullUUID{}
	}
	return owner
}

// emit delivers a change event to the notifier. Delivery is synchronous
// and at-least-once within the process; a delivery error never
// propagates to the lifecycle caller.
func (t *Tracker) emit(ctx context.Context, event *events.TaskChangedEvent) {
	if t.emitter == nil {
		return
	}
	if err := t.emitter.EmitTaskChanged(ctx, event); err != nil {
		t.logger.Warn("task change notification failed",
			"job_id", event.Record.JobID,
			"status", event.Record.Status,
			"error", err)
	}
}
