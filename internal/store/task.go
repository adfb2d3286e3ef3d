package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskstate/internal/domain"
)

// TaskFields carries the mutable lifecycle fields written by an upsert.
// Progress and the seen flags are deliberately absent: progress moves
// through UpdateProgress and the seen flags through MarkSeen, each with
// its own preconditions.
type TaskFields struct {
	Status      domain.Status
	ActorName   string
	QueueName   string
	OwnerID     uuid.NullUUID
	Description string
	ModelName   string
	AppName     string
}

// TaskFilter narrows a Query call. Zero-valued fields are ignored.
type TaskFilter struct {
	// JobIDs restricts the result to the given identifiers.
	JobIDs []uuid.UUID

	// OwnerID restricts the result to tasks owned by the given user.
	OwnerID *uuid.UUID

	// Statuses restricts the result to tasks in one of the given states.
	Statuses []domain.Status

	// Seen, when non-nil, restricts the result by the seen flag.
	Seen *bool
}

// TaskStore defines the persistence interface for task records.
// Implementations must make Upsert the sole serialization point for a
// job's record: concurrent upserts for one job ID may interleave in any
// order, but the store never holds two records for the same job.
type TaskStore interface {
	// Upsert atomically creates or updates the record for the given job.
	// First writer wins on creation, last writer wins on fields. A write
	// that regresses the record to an incomplete status also clears seen
	// and seen_at, so an acknowledged record replayed into flight is no
	// longer seen. Returns the record as stored.
	Upsert(ctx context.Context, jobID uuid.UUID, fields TaskFields) (*domain.TaskRecord, error)

	// Query returns records matching the filter, most recently updated
	// first.
	Query(ctx context.Context, filter TaskFilter) ([]*domain.TaskRecord, error)

	// UpdateProgress sets the progress of an existing record and returns
	// the updated record. Progress outside 0..100 is rejected with
	// ErrInvalidEntity; a missing record yields ErrTaskNotFound.
	UpdateProgress(ctx context.Context, jobID uuid.UUID, progress int) (*domain.TaskRecord, error)

	// MarkSeen bulk-sets seen=true and stamps seen_at for every listed
	// job whose record is complete and not yet seen. Incomplete or
	// already-seen records are silently skipped, as are records not
	// owned by ownerID when it is non-nil. Returns the number of
	// records updated.
	MarkSeen(ctx context.Context, ownerID *uuid.UUID, jobIDs []uuid.UUID) (int64, error)

	// DeleteExpired removes complete records created more than maxAge
	// ago. When onlyIfSeen is set, unseen records are kept regardless of
	// age. Returns the number of records deleted.
	DeleteExpired(ctx context.Context, maxAge time.Duration, onlyIfSeen bool) (int64, error)

	// DeleteAll removes every record. Backs the clear command; never
	// called from the live path.
	DeleteAll(ctx context.Context) (int64, error)

	// CountByOwner returns the number of records owned by the given user.
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)

	// ListForDisplay returns the owner's records that are either unseen
	// or were seen within the given window. This is what a status widget
	// renders: fresh results linger briefly after being acknowledged.
	ListForDisplay(ctx context.Context, ownerID uuid.UUID, seenWithin time.Duration) ([]*domain.TaskRecord, error)
}
