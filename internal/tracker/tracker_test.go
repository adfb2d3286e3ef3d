package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskstate/internal/domain"
	"github.com/phrazzld/taskstate/internal/events"
	"github.com/phrazzld/taskstate/internal/store"
)

// recordingEmitter captures emitted events and can be configured to fail.
type recordingEmitter struct {
	events  []*events.TaskChangedEvent
	emitErr error
}

func (e *recordingEmitter) EmitTaskChanged(ctx context.Context, event *events.TaskChangedEvent) error {
	e.events = append(e.events, event)
	return e.emitErr
}

// failingOwnerResolver rejects every lookup.
type failingOwnerResolver struct{}

func (failingOwnerResolver) Resolve(ctx context.Context, ownerID uuid.UUID) (uuid.NullUUID, error) {
	return uuid.NullUUID{}, errors.New("owner lookup failed")
}

func newTestTracker(t *testing.T) (*Tracker, *store.MemoryTaskStore, *recordingEmitter) {
	t.Helper()
	taskStore := store.NewMemoryTaskStore()
	emitter := &recordingEmitter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTracker(taskStore, emitter, nil, logger), taskStore, emitter
}

func trackedEvent(jobID uuid.UUID) JobEvent {
	return JobEvent{
		JobID:     jobID,
		ActorName: "generate_report",
		QueueName: "default",
		ForState:  json.RawMessage(`{"description":"Monthly report"}`),
	}
}

func TestTrackerIgnoresUntrackedJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, taskStore, emitter := newTestTracker(t)
	jobID := uuid.New()

	// No correlation bundle, a null bundle, and a malformed bundle all
	// opt the job out of tracking.
	for _, forState := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`42`)} {
		ev := JobEvent{JobID: jobID, ActorName: "generate_report", ForState: forState}
		require.NoError(t, tr.OnEnqueued(ctx, ev, 0))
		require.NoError(t, tr.OnStarted(ctx, ev))
		require.NoError(t, tr.OnFinished(ctx, ev, nil))
		require.NoError(t, tr.OnSkipped(ctx, ev))
	}

	records, err := taskStore.Query(ctx, store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, records, "untracked jobs must never be recorded")
	assert.Empty(t, emitter.events)
}

func TestTrackerLifecycleTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name       string
		transition func(tr *Tracker, ev JobEvent) error
		want       domain.Status
	}{
		{
			name: "enqueued without delay",
			transition: func(tr *Tracker, ev JobEvent) error {
				return tr.OnEnqueued(ctx, ev, 0)
			},
			want: domain.StatusEnqueued,
		},
		{
			name: "enqueued with delay",
			transition: func(tr *Tracker, ev JobEvent) error {
				return tr.OnEnqueued(ctx, ev, 5*time.Second)
			},
			want: domain.StatusDelayed,
		},
		{
			name: "started",
			transition: func(tr *Tracker, ev JobEvent) error {
				return tr.OnStarted(ctx, ev)
			},
			want: domain.StatusRunning,
		},
		{
			name: "finished successfully",
			transition: func(tr *Tracker, ev JobEvent) error {
				return tr.OnFinished(ctx, ev, nil)
			},
			want: domain.StatusDone,
		},
		{
			name: "finished with error",
			transition: func(tr *Tracker, ev JobEvent) error {
				return tr.OnFinished(ctx, ev, errors.New("worker crashed"))
			},
			want: domain.StatusFailed,
		},
		{
			name: "skipped",
			transition: func(tr *Tracker, ev JobEvent) error {
				return tr.OnSkipped(ctx, ev)
			},
			want: domain.StatusSkipped,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr, taskStore, emitter := newTestTracker(t)
			jobID := uuid.New()

			require.NoError(t, tc.transition(tr, trackedEvent(jobID)))

			records, err := taskStore.Query(ctx, store.TaskFilter{JobIDs: []uuid.UUID{jobID}})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tc.want, records[0].Status)
			assert.Equal(t, "generate_report", records[0].ActorName)
			assert.Equal(t, "default", records[0].QueueName)
			assert.Equal(t, "Monthly report", records[0].Description)

			// Each transition emits exactly one lifecycle event.
			require.Len(t, emitter.events, 1)
			assert.Equal(t, events.ChangeKindLifecycle, emitter.events[0].Kind)
			assert.Equal(t, jobID, emitter.events[0].Record.JobID)
			assert.Equal(t, tc.want, emitter.events[0].Record.Status)
		})
	}
}

func TestTrackerUpsertsSingleRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, taskStore, emitter := newTestTracker(t)
	jobID := uuid.New()
	ev := trackedEvent(jobID)

	require.NoError(t, tr.OnEnqueued(ctx, ev, 0))
	require.NoError(t, tr.OnStarted(ctx, ev))
	require.NoError(t, tr.OnFinished(ctx, ev, nil))

	records, err := taskStore.Query(ctx, store.TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, records, 1, "lifecycle must maintain one record per job")
	assert.Equal(t, domain.StatusDone, records[0].Status)
	assert.Len(t, emitter.events, 3)
}

func TestTrackerDefaultsDescription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, taskStore, _ := newTestTracker(t)
	jobID := uuid.New()

	ev := JobEvent{JobID: jobID, ForState: json.RawMessage(`{}`)}
	require.NoError(t, tr.OnEnqueued(ctx, ev, 0))

	records, err := taskStore.Query(ctx, store.TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Task", records[0].Description)
}

func TestTrackerStoresOwnerAndMeta(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, taskStore, _ := newTestTracker(t)
	jobID := uuid.New()
	ownerID := uuid.New()

	ev := JobEvent{
		JobID: jobID,
		ForState: json.RawMessage(`{"owner_id":"` + ownerID.String() +
			`","model_name":"report","app_name":"billing","description":"Report"}`),
	}
	require.NoError(t, tr.OnStarted(ctx, ev))

	records, err := taskStore.Query(ctx, store.TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].OwnerID.Valid)
	assert.Equal(t, ownerID, records[0].OwnerID.UUID)
	assert.Equal(t, "report", records[0].ModelName)
	assert.Equal(t, "billing", records[0].AppName)
}

func TestTrackerTracksDespiteOwnerResolutionFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	taskStore := store.NewMemoryTaskStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := NewTracker(taskStore, &recordingEmitter{}, failingOwnerResolver{}, logger)

	jobID := uuid.New()
	ev := JobEvent{
		JobID:    jobID,
		ForState: json.RawMessage(`{"owner_id":"` + uuid.New().String() + `"}`),
	}
	require.NoError(t, tr.OnStarted(ctx, ev))

	records, err := taskStore.Query(ctx, store.TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, records, 1, "job must be tracked even when its owner cannot be resolved")
	assert.False(t, records[0].OwnerID.Valid)
}

func TestTrackerSwallowsEmitFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	taskStore := store.NewMemoryTaskStore()
	emitter := &recordingEmitter{emitErr: errors.New("notifier down")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := NewTracker(taskStore, emitter, nil, logger)

	jobID := uuid.New()
	require.NoError(t, tr.OnStarted(ctx, trackedEvent(jobID)),
		"a notification fault must never fail the lifecycle callback")

	// The upsert itself still happened.
	records, err := taskStore.Query(ctx, store.TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTrackerReportProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, taskStore, emitter := newTestTracker(t)
	jobID := uuid.New()

	require.NoError(t, tr.OnStarted(ctx, trackedEvent(jobID)))
	emitter.events = nil

	require.NoError(t, tr.ReportProgress(ctx, jobID, 40))

	records, err := taskStore.Query(ctx, store.TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 40, records[0].Progress)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, events.ChangeKindProgress, emitter.events[0].Kind)
	assert.Equal(t, 40, emitter.events[0].Record.Progress)

	// Progress for a job that was never tracked is a soft no-op.
	require.NoError(t, tr.ReportProgress(ctx, uuid.New(), 50))
	assert.Len(t, emitter.events, 1)

	// Out-of-range progress is the caller's error.
	err = tr.ReportProgress(ctx, jobID, 150)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}
