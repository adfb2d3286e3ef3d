package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskstate/internal/domain"
)

// MemoryTaskStore is an in-memory TaskStore. A single mutex serializes
// every operation, which makes it the upsert serialization point the
// interface demands: one record per job, first writer creates, last
// writer updates. Used by tests and local development; production runs
// against PostgreSQL.
type MemoryTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.TaskRecord
	nowFunc func() time.Time
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		records: make(map[uuid.UUID]*domain.TaskRecord),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock. Tests use this to age records without
// sleeping.
func (s *MemoryTaskStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

// Upsert atomically creates or updates the record for the given job.
func (s *MemoryTaskStore) Upsert(
	ctx context.Context,
	jobID uuid.UUID,
	fields TaskFields,
) (*domain.TaskRecord, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, domain.ErrEmptyJobID)
	}
	if !fields.Status.IsValid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, domain.ErrInvalidStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UTC()
	record, ok := s.records[jobID]
	if !ok {
		record = &domain.TaskRecord{
			JobID:     jobID,
			CreatedAt: now,
		}
		s.records[jobID] = record
	}

	record.Status = fields.Status
	record.ActorName = fields.ActorName
	record.QueueName = fields.QueueName
	record.OwnerID = fields.OwnerID
	record.Description = fields.Description
	record.ModelName = fields.ModelName
	record.AppName = fields.AppName
	record.UpdatedAt = now

	// A replayed late callback can regress a complete, acknowledged
	// record; a record in flight again is no longer seen.
	if !record.IsComplete() && record.Seen {
		record.Seen = false
		record.SeenAt = nil
	}

	return copyRecord(record), nil
}

// Query returns records matching the filter, most recently updated first.
func (s *MemoryTaskStore) Query(ctx context.Context, filter TaskFilter) ([]*domain.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idSet map[uuid.UUID]struct{}
	if filter.JobIDs != nil {
		idSet = make(map[uuid.UUID]struct{}, len(filter.JobIDs))
		for _, id := range filter.JobIDs {
			idSet[id] = struct{}{}
		}
	}

	var out []*domain.TaskRecord
	for _, record := range s.records {
		if idSet != nil {
			if _, ok := idSet[record.JobID]; !ok {
				continue
			}
		}
		if filter.OwnerID != nil {
			if !record.OwnerID.Valid || record.OwnerID.UUID != *filter.OwnerID {
				continue
			}
		}
		if len(filter.Statuses) > 0 && !statusIn(record.Status, filter.Statuses) {
			continue
		}
		if filter.Seen != nil && record.Seen != *filter.Seen {
			continue
		}
		out = append(out, copyRecord(record))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// UpdateProgress sets the progress of an existing record.
func (s *MemoryTaskStore) UpdateProgress(
	ctx context.Context,
	jobID uuid.UUID,
	progress int,
) (*domain.TaskRecord, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, domain.ErrProgressOutOfRange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	record.Progress = progress
	record.UpdatedAt = s.nowFunc().UTC()
	return copyRecord(record), nil
}

// MarkSeen bulk-sets seen for complete, unseen records among the given
// ids, restricted to ownerID's records when ownerID is non-nil.
func (s *MemoryTaskStore) MarkSeen(ctx context.Context, ownerID *uuid.UUID, jobIDs []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UTC()
	var updated int64
	for _, id := range jobIDs {
		record, ok := s.records[id]
		if !ok || record.Seen || !record.IsComplete() {
			continue
		}
		if ownerID != nil && (!record.OwnerID.Valid || record.OwnerID.UUID != *ownerID) {
			continue
		}
		record.Seen = true
		seenAt := now
		record.SeenAt = &seenAt
		record.UpdatedAt = now
		updated++
	}
	return updated, nil
}

// DeleteExpired removes complete records older than maxAge.
func (s *MemoryTaskStore) DeleteExpired(
	ctx context.Context,
	maxAge time.Duration,
	onlyIfSeen bool,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFunc().UTC().Add(-maxAge)
	var deleted int64
	for id, record := range s.records {
		if !record.IsComplete() {
			continue
		}
		if record.CreatedAt.After(cutoff) {
			continue
		}
		if onlyIfSeen && !record.Seen {
			continue
		}
		delete(s.records, id)
		deleted++
	}
	return deleted, nil
}

// DeleteAll removes every record.
func (s *MemoryTaskStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(len(s.records))
	s.records = make(map[uuid.UUID]*domain.TaskRecord)
	return deleted, nil
}

// CountByOwner returns the number of records owned by the given user.
func (s *MemoryTaskStore) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, record := range s.records {
		if record.OwnerID.Valid && record.OwnerID.UUID == ownerID {
			count++
		}
	}
	return count, nil
}

// ListForDisplay returns the owner's unseen records plus records seen
// within the given window.
func (s *MemoryTaskStore) ListForDisplay(
	ctx context.Context,
	ownerID uuid.UUID,
	seenWithin time.Duration,
) ([]*domain.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFunc().UTC().Add(-seenWithin)
	var out []*domain.TaskRecord
	for _, record := range s.records {
		if !record.OwnerID.Valid || record.OwnerID.UUID != ownerID {
			continue
		}
		if record.Seen && (record.SeenAt == nil || record.SeenAt.Before(cutoff)) {
			continue
		}
		out = append(out, copyRecord(record))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func statusIn(status domain.Status, statuses []domain.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func copyRecord(record *domain.TaskRecord) *domain.TaskRecord {
	clone := *record
	if record.SeenAt != nil {
		seenAt := *record.SeenAt
		clone.SeenAt = &seenAt
	}
	return &clone
}
