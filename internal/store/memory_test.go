package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskstate/internal/domain"
)

func TestMemoryTaskStoreUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	jobID := uuid.New()
	ownerID := uuid.New()

	// First write creates.
	record, err := s.Upsert(ctx, jobID, TaskFields{
		Status:      domain.StatusEnqueued,
		ActorName:   "generate_report",
		QueueName:   "default",
		OwnerID:     uuid.NullUUID{UUID: ownerID, Valid: true},
		Description: "Monthly report",
	})
	require.NoError(t, err)
	assert.Equal(t, jobID, record.JobID)
	assert.Equal(t, domain.StatusEnqueued, record.Status)
	assert.Equal(t, 0, record.Progress)
	assert.False(t, record.CreatedAt.IsZero())

	createdAt := record.CreatedAt

	// Progress written through the direct path survives a later upsert.
	_, err = s.UpdateProgress(ctx, jobID, 40)
	require.NoError(t, err)

	record, err = s.Upsert(ctx, jobID, TaskFields{
		Status:      domain.StatusRunning,
		ActorName:   "generate_report",
		QueueName:   "default",
		OwnerID:     uuid.NullUUID{UUID: ownerID, Valid: true},
		Description: "Monthly report",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, record.Status)
	assert.Equal(t, 40, record.Progress, "upsert must not reset progress")
	assert.Equal(t, createdAt, record.CreatedAt, "upsert must not reset creation time")

	// Invalid inputs.
	_, err = s.Upsert(ctx, uuid.Nil, TaskFields{Status: domain.StatusEnqueued})
	assert.ErrorIs(t, err, ErrInvalidEntity)

	_, err = s.Upsert(ctx, uuid.New(), TaskFields{Status: "pending"})
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestMemoryTaskStoreUpsertConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	jobID := uuid.New()

	// Concurrent upserts for the same job must settle on one record.
	var wg sync.WaitGroup
	statuses := []domain.Status{
		domain.StatusEnqueued, domain.StatusRunning, domain.StatusDone,
	}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(status domain.Status) {
			defer wg.Done()
			_, err := s.Upsert(ctx, jobID, TaskFields{Status: status})
			assert.NoError(t, err)
		}(statuses[i%len(statuses)])
	}
	wg.Wait()

	records, err := s.Query(ctx, TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Status.IsValid())
}

func TestMemoryTaskStoreQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	owner := uuid.New()
	other := uuid.New()

	mine := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusDone,
		OwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})
	theirs := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusDone,
		OwnerID: uuid.NullUUID{UUID: other, Valid: true},
	})
	running := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusRunning,
		OwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})

	// Owner scoping.
	records, err := s.Query(ctx, TaskFilter{OwnerID: &owner})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, theirs, r.JobID)
	}

	// ID plus owner: another owner's job is invisible, not an error.
	records, err = s.Query(ctx, TaskFilter{
		JobIDs:  []uuid.UUID{mine, theirs},
		OwnerID: &owner,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, mine, records[0].JobID)

	// Status filter.
	records, err = s.Query(ctx, TaskFilter{
		OwnerID:  &owner,
		Statuses: []domain.Status{domain.StatusRunning},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, running, records[0].JobID)

	// Seen filter.
	_, err = s.MarkSeen(ctx, nil, []uuid.UUID{mine})
	require.NoError(t, err)
	seen := false
	records, err = s.Query(ctx, TaskFilter{OwnerID: &owner, Seen: &seen})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, running, records[0].JobID)

	// Non-nil empty ID list means "these jobs", which is none.
	records, err = s.Query(ctx, TaskFilter{JobIDs: []uuid.UUID{}})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryTaskStoreUpdateProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	jobID := mustUpsert(t, s, TaskFields{Status: domain.StatusRunning})

	record, err := s.UpdateProgress(ctx, jobID, 75)
	require.NoError(t, err)
	assert.Equal(t, 75, record.Progress)

	// Range check happens before the lookup.
	_, err = s.UpdateProgress(ctx, jobID, 101)
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, err = s.UpdateProgress(ctx, jobID, -1)
	assert.ErrorIs(t, err, ErrInvalidEntity)

	// Unknown job.
	_, err = s.UpdateProgress(ctx, uuid.New(), 10)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestMemoryTaskStoreMarkSeen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()

	done := mustUpsert(t, s, TaskFields{Status: domain.StatusDone})
	failed := mustUpsert(t, s, TaskFields{Status: domain.StatusFailed})
	running := mustUpsert(t, s, TaskFields{Status: domain.StatusRunning})
	missing := uuid.New()

	// Incomplete and unknown jobs are silently filtered, not errors.
	updated, err := s.MarkSeen(ctx, nil, []uuid.UUID{done, failed, running, missing})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	records, err := s.Query(ctx, TaskFilter{JobIDs: []uuid.UUID{running}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Seen, "incomplete task must never be marked seen")
	assert.Nil(t, records[0].SeenAt)

	// Marking again is a no-op.
	updated, err = s.MarkSeen(ctx, nil, []uuid.UUID{done, failed})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
}

func TestMemoryTaskStoreUpsertClearsSeenOnRegression(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	jobID := mustUpsert(t, s, TaskFields{Status: domain.StatusDone})

	_, err := s.MarkSeen(ctx, nil, []uuid.UUID{jobID})
	require.NoError(t, err)

	// A replayed "started" callback arriving after the acknowledgement
	// must not leave a seen record on an incomplete status.
	record, err := s.Upsert(ctx, jobID, TaskFields{Status: domain.StatusRunning})
	require.NoError(t, err)
	assert.False(t, record.Seen)
	assert.Nil(t, record.SeenAt)
	assert.NoError(t, record.Validate())

	// A replayed complete callback keeps the acknowledgement.
	_, err = s.Upsert(ctx, jobID, TaskFields{Status: domain.StatusDone})
	require.NoError(t, err)
	_, err = s.MarkSeen(ctx, nil, []uuid.UUID{jobID})
	require.NoError(t, err)
	record, err = s.Upsert(ctx, jobID, TaskFields{Status: domain.StatusDone})
	require.NoError(t, err)
	assert.True(t, record.Seen)
	require.NotNil(t, record.SeenAt)
}

func TestMemoryTaskStoreMarkSeenOwnerFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	owner := uuid.New()
	other := uuid.New()

	mine := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusDone,
		OwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})
	theirs := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusDone,
		OwnerID: uuid.NullUUID{UUID: other, Valid: true},
	})
	unowned := mustUpsert(t, s, TaskFields{Status: domain.StatusDone})

	// Only the named owner's records change; ownerless records never
	// match an owner filter.
	updated, err := s.MarkSeen(ctx, &owner, []uuid.UUID{mine, theirs, unowned})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	records, err := s.Query(ctx, TaskFilter{JobIDs: []uuid.UUID{theirs, unowned}})
	require.NoError(t, err)
	for _, record := range records {
		assert.False(t, record.Seen)
	}
}

func TestMemoryTaskStoreDeleteExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.SetNowFunc(func() time.Time { return now })

	oldSeen := mustUpsert(t, s, TaskFields{Status: domain.StatusDone})
	oldUnseen := mustUpsert(t, s, TaskFields{Status: domain.StatusFailed})
	oldRunning := mustUpsert(t, s, TaskFields{Status: domain.StatusRunning})
	_, err := s.MarkSeen(ctx, nil, []uuid.UUID{oldSeen})
	require.NoError(t, err)

	// Fresher than the cutoff.
	now = base.Add(12 * time.Hour)
	fresh := mustUpsert(t, s, TaskFields{Status: domain.StatusDone})

	now = base.Add(24 * time.Hour)
	deleted, err := s.DeleteExpired(ctx, 13*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := s.Query(ctx, TaskFilter{})
	require.NoError(t, err)
	ids := make(map[uuid.UUID]bool, len(remaining))
	for _, r := range remaining {
		ids[r.JobID] = true
	}
	assert.False(t, ids[oldSeen], "old seen complete task should be deleted")
	assert.True(t, ids[oldUnseen], "unseen task survives a seen-only sweep")
	assert.True(t, ids[oldRunning], "running task survives regardless of age")
	assert.True(t, ids[fresh], "fresh task survives")

	// Unrestricted sweep takes the unseen one too, still never the running one.
	deleted, err = s.DeleteExpired(ctx, 13*time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err = s.Query(ctx, TaskFilter{})
	require.NoError(t, err)
	for _, r := range remaining {
		assert.NotEqual(t, oldUnseen, r.JobID)
	}
}

func TestMemoryTaskStoreDeleteAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()

	mustUpsert(t, s, TaskFields{Status: domain.StatusDone})
	mustUpsert(t, s, TaskFields{Status: domain.StatusRunning})

	deleted, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	records, err := s.Query(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryTaskStoreCountByOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	owner := uuid.New()

	count, err := s.CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	mustUpsert(t, s, TaskFields{
		Status:  domain.StatusRunning,
		OwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})
	mustUpsert(t, s, TaskFields{Status: domain.StatusRunning}) // ownerless

	count, err = s.CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryTaskStoreListForDisplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	owner := uuid.New()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.SetNowFunc(func() time.Time { return now })

	unseen := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusRunning,
		OwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})
	recentlySeen := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusDone,
		OwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})
	longSeen := mustUpsert(t, s, TaskFields{
		Status:  domain.StatusDone,
		OwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})

	_, err := s.MarkSeen(ctx, nil, []uuid.UUID{longSeen})
	require.NoError(t, err)
	now = base.Add(2 * time.Minute)
	_, err = s.MarkSeen(ctx, nil, []uuid.UUID{recentlySeen})
	require.NoError(t, err)

	now = base.Add(2*time.Minute + 10*time.Second)
	records, err := s.ListForDisplay(ctx, owner, 30*time.Second)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool, len(records))
	for _, r := range records {
		ids[r.JobID] = true
	}
	assert.True(t, ids[unseen], "unseen task always listed")
	assert.True(t, ids[recentlySeen], "task seen within the window still listed")
	assert.False(t, ids[longSeen], "task seen before the window dropped")
}

func TestMemoryTaskStoreReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTaskStore()
	jobID := mustUpsert(t, s, TaskFields{Status: domain.StatusRunning})

	records, err := s.Query(ctx, TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Mutating a returned record must not leak into the store.
	records[0].Status = domain.StatusFailed
	records[0].Progress = 99

	fresh, err := s.Query(ctx, TaskFilter{JobIDs: []uuid.UUID{jobID}})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, domain.StatusRunning, fresh[0].Status)
	assert.Equal(t, 0, fresh[0].Progress)
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrTaskNotFound))
	assert.False(t, IsNotFoundError(ErrDuplicate))
	assert.False(t, IsNotFoundError(errors.New("boom")))
	assert.False(t, IsNotFoundError(nil))
}

// mustUpsert inserts a record with a fresh job ID and returns the ID.
func mustUpsert(t *testing.T, s *MemoryTaskStore, fields TaskFields) uuid.UUID {
	t.Helper()
	jobID := uuid.New()
	_, err := s.Upsert(context.Background(), jobID, fields)
	require.NoError(t, err)
	return jobID
}
