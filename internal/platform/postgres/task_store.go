package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskstate/internal/domain"
	"github.com/phrazzld/taskstate/internal/platform/logger"
	"github.com/phrazzld/taskstate/internal/store"
)

// taskColumns is the column list every row scan uses, in scanTask order.
const taskColumns = `job_id, status, progress, actor_name, queue_name, owner_id,
	description, model_name, app_name, seen, seen_at, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Upsert atomically creates or updates the record for the given job.
// The INSERT .. ON CONFLICT on the job_id primary key is the single
// serialization point: the first writer creates the row, every later
// writer updates it, and the database orders concurrent writers.
func (s *PostgresTaskStore) Upsert(
	ctx context.Context,
	jobID uuid.UUID,
	fields store.TaskFields,
) (*domain.TaskRecord, error) {
	log := logger.FromContext(ctx)

	if jobID == uuid.Nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyJobID)
	}
	if !fields.Status.IsValid() {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidStatus)
	}

	query := `
		INSERT INTO tasks (job_id, status, progress, actor_name, queue_name, owner_id,
			description, model_name, app_name, seen, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			actor_name = EXCLUDED.actor_name,
			queue_name = EXCLUDED.queue_name,
			owner_id = EXCLUDED.owner_id,
			description = EXCLUDED.description,
			model_name = EXCLUDED.model_name,
			app_name = EXCLUDED.app_name,
			seen = CASE WHEN EXCLUDED.status IN ('done', 'failed', 'skipped')
				THEN tasks.seen ELSE FALSE END,
			seen_at = CASE WHEN EXCLUDED.status IN ('done', 'failed', 'skipped')
				THEN tasks.seen_at ELSE NULL END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + taskColumns

	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, query,
		jobID,
		fields.Status,
		fields.ActorName,
		fields.QueueName,
		fields.OwnerID,
		fields.Description,
		fields.ModelName,
		fields.AppName,
		now,
	)

	record, err := scanTask(row)
	if err != nil {
		log.Error("failed to upsert task",
			"job_id", jobID,
			"status", fields.Status,
			"error", err)
		return nil, fmt.Errorf("failed to upsert task: %w", MapError(err))
	}

	return record, nil
}

// Query returns records matching the filter, most recently updated first.
func (s *PostgresTaskStore) Query(
	ctx context.Context,
	filter store.TaskFilter,
) ([]*domain.TaskRecord, error) {
	log := logger.FromContext(ctx)

	var (
		conditions []string
		args       []any
	)

	if filter.JobIDs != nil {
		if len(filter.JobIDs) == 0 {
			return nil, nil
		}
		placeholders := make([]string, len(filter.JobIDs))
		for i, id := range filter.JobIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions,
			fmt.Sprintf("job_id IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions,
			fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.Seen != nil {
		args = append(args, *filter.Seen)
		conditions = append(conditions, fmt.Sprintf("seen = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.TaskRecord
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", MapError(err))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", MapError(err))
	}

	return records, nil
}

// UpdateProgress sets the progress of an existing record. This is the
// store's direct-write path: it bypasses the lifecycle tracker, so the
// caller is responsible for emitting the matching change event.
func (s *PostgresTaskStore) UpdateProgress(
	ctx context.Context,
	jobID uuid.UUID,
	progress int,
) (*domain.TaskRecord, error) {
	log := logger.FromContext(ctx)

	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrProgressOutOfRange)
	}

	query := `
		UPDATE tasks
		SET progress = $2, updated_at = $3
		WHERE job_id = $1
		RETURNING ` + taskColumns

	row := s.db.QueryRowContext(ctx, query, jobID, progress, time.Now().UTC())

	record, err := scanTask(row)
	if err != nil {
		mapped := MapError(err)
		if store.IsNotFoundError(mapped) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to update task progress",
			"job_id", jobID,
			"progress", progress,
			"error", err)
		return nil, fmt.Errorf("failed to update task progress: %w", mapped)
	}

	return record, nil
}

// MarkSeen bulk-sets seen for every listed job whose record is complete
// and not yet seen. The WHERE clause filters incomplete records out, so
// listing one is legal here rather than a validation error. A non-nil
// ownerID additionally restricts the update to that owner's records.
func (s *PostgresTaskStore) MarkSeen(ctx context.Context, ownerID *uuid.UUID, jobIDs []uuid.UUID) (int64, error) {
	log := logger.FromContext(ctx)

	if len(jobIDs) == 0 {
		return 0, nil
	}

	args := []any{time.Now().UTC()}
	placeholders := make([]string, len(jobIDs))
	for i, id := range jobIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf(`
		UPDATE tasks
		SET seen = TRUE, seen_at = $1, updated_at = $1
		WHERE job_id IN (%s)
		  AND seen = FALSE
		  AND status IN ('done', 'failed', 'skipped')`,
		strings.Join(placeholders, ", "))

	if ownerID != nil {
		args = append(args, *ownerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to mark tasks seen", "job_count", len(jobIDs), "error", err)
		return 0, fmt.Errorf("failed to mark tasks seen: %w", MapError(err))
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return updated, nil
}

// DeleteExpired removes complete records created more than maxAge ago.
// Safe to run concurrently with live traffic: complete records are
// immutable apart from the seen flag.
func (s *PostgresTaskStore) DeleteExpired(
	ctx context.Context,
	maxAge time.Duration,
	onlyIfSeen bool,
) (int64, error) {
	log := logger.FromContext(ctx)

	cutoff := time.Now().UTC().Add(-maxAge)

	query := `
		DELETE FROM tasks
		WHERE status IN ('done', 'failed', 'skipped')
		  AND created_at <= $1`
	args := []any{cutoff}

	if onlyIfSeen {
		query += " AND seen = TRUE"
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to delete expired tasks", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete expired tasks: %w", MapError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	log.Debug("deleted expired tasks", "deleted", deleted, "only_if_seen", onlyIfSeen)
	return deleted, nil
}

// DeleteAll removes every record.
func (s *PostgresTaskStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", MapError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// CountByOwner returns the number of records owned by the given user.
func (s *PostgresTaskStore) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE owner_id = $1`, ownerID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks by owner: %w", MapError(err))
	}
	return count, nil
}

// ListForDisplay returns the owner's records that are either unseen or
// were seen within the given window.
func (s *PostgresTaskStore) ListForDisplay(
	ctx context.Context,
	ownerID uuid.UUID,
	seenWithin time.Duration,
) ([]*domain.TaskRecord, error) {
	cutoff := time.Now().UTC().Add(-seenWithin)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1
		  AND (seen = FALSE OR seen_at >= $2)
		ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for display: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.TaskRecord
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", MapError(err))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", MapError(err))
	}

	return records, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.TaskRecord, error) {
	var record domain.TaskRecord
	err := row.Scan(
		&record.JobID,
		&record.Status,
		&record.Progress,
		&record.ActorName,
		&record.QueueName,
		&record.OwnerID,
		&record.Description,
		&record.ModelName,
		&record.AppName,
		&record.Seen,
		&record.SeenAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
