package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrEmptyJobID         = errors.New("job ID cannot be empty")
	ErrInvalidStatus      = errors.New("invalid task status")
	ErrProgressOutOfRange = errors.New("progress must be between 0 and 100")
	ErrSeenIncomplete     = errors.New("only completed tasks can be marked as seen")
)

// Status represents the lifecycle state of a tracked background task.
type Status string

// Possible task status values, in lifecycle order.
const (
	StatusEnqueued Status = "enqueued"
	StatusDelayed  Status = "delayed"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
	StatusDone     Status = "done"
	StatusSkipped  Status = "skipped"
)

// CompleteStatuses are the terminal states. A task in one of these states
// will never transition again; it becomes eligible for seen-marking and,
// eventually, cleanup.
var CompleteStatuses = []Status{StatusDone, StatusFailed, StatusSkipped}

// IsValid reports whether s is one of the known status values.
func (s Status) IsValid() bool {
	switch s {
	case StatusEnqueued, StatusDelayed, StatusRunning, StatusFailed, StatusDone, StatusSkipped:
		return true
	}
	return false
}

// IsComplete reports whether s is a terminal status.
func (s Status) IsComplete() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

// TaskRecord is the persisted view of one background job's lifecycle state.
// There is exactly one record per job; lifecycle callbacks mutate it through
// the store's upsert keyed on JobID.
type TaskRecord struct {
	JobID       uuid.UUID     `json:"job_id"`
	Status      Status        `json:"status"`
	Progress    int           `json:"progress"`
	ActorName   string        `json:"actor_name,omitempty"`
	QueueName   string        `json:"queue_name,omitempty"`
	OwnerID     uuid.NullUUID `json:"owner_id,omitempty"`
	Description string        `json:"description,omitempty"`
	ModelName   string        `json:"model_name,omitempty"`
	AppName     string        `json:"app_name,omitempty"`
	Seen        bool          `json:"seen"`
	SeenAt      *time.Time    `json:"seen_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsComplete reports whether the record has reached a terminal status.
func (t *TaskRecord) IsComplete() bool {
	return t.Status.IsComplete()
}

// Validate checks if the TaskRecord has valid data.
// Returns an error if any field fails validation.
func (t *TaskRecord) Validate() error {
	if t.JobID == uuid.Nil {
		return ErrEmptyJobID
	}

	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}

	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("%w: got %d", ErrProgressOutOfRange, t.Progress)
	}

	// Seen may only be set once the task has reached a terminal status.
	// This is a hard validation error on the direct mutation path; the
	// store's bulk MarkSeen filters incomplete tasks out instead.
	if (t.Seen || t.SeenAt != nil) && !t.IsComplete() {
		return ErrSeenIncomplete
	}

	return nil
}

// MarkSeen flips the seen flag and stamps SeenAt. It fails if the task is
// not yet complete.
func (t *TaskRecord) MarkSeen(now time.Time) error {
	if !t.IsComplete() {
		return ErrSeenIncomplete
	}
	t.Seen = true
	t.SeenAt = &now
	t.UpdatedAt = now
	return nil
}

// TrackingMeta is the optional correlation bundle attached to a job at
// submission time. Its presence is what opts a job into tracking: a job
// submitted without one is simply never recorded. Every field is
// independently optional.
type TrackingMeta struct {
	OwnerID     *uuid.UUID `json:"owner_id,omitempty"`
	ModelName   string     `json:"model_name,omitempty"`
	AppName     string     `json:"app_name,omitempty"`
	Description string     `json:"description,omitempty"`
}

// DecodeTrackingMeta parses a raw correlation bundle from a job payload.
// Returns (nil, false) when the bundle is absent, null, or not a JSON
// object -- all of which mean the job opted out of tracking. The boolean
// is false only in that untracked case; a present-but-partial object still
// yields a usable TrackingMeta.
func DecodeTrackingMeta(raw json.RawMessage) (*TrackingMeta, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}

	var meta TrackingMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false
	}
	return &meta, true
}
