package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"showsync/internal/models"
)

const jobColumns = `seq, id, kind, entity_type, entity_id, payload, status, attempts,
        last_error, created_at, processed_at, next_retry_at`

func scanJob(row interface{ Scan(...any) error }) (*models.SyncJob, error) {
	var j models.SyncJob
	err := row.Scan(
		&j.Seq,
		&j.ID,
		&j.Kind,
		&j.EntityType,
		&j.EntityID,
		&j.Payload,
		&j.Status,
		&j.Attempts,
		&j.LastError,
		&j.CreatedAt,
		&j.ProcessedAt,
		&j.NextRetryAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateSyncJob appends a job to the durable queue.
func (db *DB) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	query := `INSERT INTO job_queue (id, kind, entity_type, entity_id, payload, status, attempts, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		job.ID, job.Kind, job.EntityType, job.EntityID, job.Payload, job.Status, job.Attempts, now)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.Seq = seq
	job.CreatedAt = now
	return nil
}

// GetSyncJob returns a job by its stable id, or nil when unknown.
func (db *DB) GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM job_queue WHERE id = ?`
	job, err := scanJob(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// NextPendingJobs returns due jobs in FIFO order. A job is only due when it
// is the oldest non-terminal job for its entity, so a later mutation of the
// same row cannot overtake an earlier one parked in retry backoff.
func (db *DB) NextPendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM job_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
                AND seq = (SELECT MIN(q2.seq) FROM job_queue q2
                           WHERE q2.entity_type = job_queue.entity_type
                             AND q2.entity_id = job_queue.entity_id
                             AND q2.status IN ('pending', 'retry', 'running'))
              ORDER BY seq ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// OldestActiveJobSeq returns the smallest seq among non-terminal jobs for an
// entity, or 0 when the entity has none.
func (db *DB) OldestActiveJobSeq(ctx context.Context, entityType string, entityID int64) (int64, error) {
	query := `SELECT COALESCE(MIN(seq), 0) FROM job_queue
              WHERE entity_type = ? AND entity_id = ? AND status IN ('pending', 'retry', 'running')`
	var seq int64
	if err := db.QueryRowContext(ctx, query, entityType, entityID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to get oldest active job seq: %w", err)
	}
	return seq, nil
}

// FindDuplicateJob returns a queued job with the same kind, entity and
// payload, or nil. Used to suppress duplicates of idempotent sync kinds.
func (db *DB) FindDuplicateJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM job_queue
              WHERE kind = ? AND entity_type = ? AND entity_id = ? AND payload = ?
                AND status IN ('pending', 'retry', 'running')
              LIMIT 1`
	existing, err := scanJob(db.QueryRowContext(ctx, query, job.Kind, job.EntityType, job.EntityID, job.Payload))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return existing, err
}

// MarkJobRunning flags the job as in flight.
func (db *DB) MarkJobRunning(ctx context.Context, id string) error {
	query := `UPDATE job_queue SET status = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.JobStatusRunning, id)
	return err
}

// MarkJobCompleted records a successful execution.
func (db *DB) MarkJobCompleted(ctx context.Context, id string) error {
	query := `UPDATE job_queue SET status = ?, last_error = NULL, next_retry_at = NULL, processed_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.JobStatusCompleted, time.Now(), id)
	return err
}

// MarkJobFailed records a terminal failure.
func (db *DB) MarkJobFailed(ctx context.Context, id, errMsg string) error {
	query := `UPDATE job_queue SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errMsg, time.Now(), id)
	return err
}

// MarkJobRetry schedules another attempt after a transient failure.
func (db *DB) MarkJobRetry(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	query := `UPDATE job_queue SET status = ?, last_error = ?, next_retry_at = ?, attempts = attempts + 1 WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.JobStatusRetry, errMsg, nextRetryAt, id)
	return err
}

// RequeueRunningJobs flips running jobs back to pending. Called once on
// startup so jobs interrupted by a crash are executed again.
func (db *DB) RequeueRunningJobs(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE job_queue SET status = ? WHERE status = ?`,
		models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue running jobs: %w", err)
	}
	return result.RowsAffected()
}

// CountActiveJobs returns the number of non-terminal jobs.
func (db *DB) CountActiveJobs(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM job_queue WHERE status IN ('pending', 'retry', 'running')`
	var count int
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// GetFailedSyncJobs returns terminally failed jobs, newest first.
func (db *DB) GetFailedSyncJobs(ctx context.Context) ([]models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM job_queue WHERE status = ? ORDER BY seq DESC`
	rows, err := db.QueryContext(ctx, query, models.JobStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
