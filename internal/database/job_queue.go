package database

import (
	"context"
	"fmt"
	"time"

	"github.com/adiga-code/numerology/internal/models"
)

const jobColumns = `id, task_type, order_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

// CreateJob enqueues a job. Only one live job per task type and order may
// exist; a second one returns ErrDuplicate.
func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobPending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, `INSERT INTO job_queue
		(task_type, order_id, payload, status, retry_count, last_error, created_at, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.TaskType,
		job.OrderID,
		job.Payload,
		job.Status,
		job.RetryCount,
		job.LastError,
		now,
		job.NextRetryAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	return nil
}

func (db *DB) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	if err := db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM job_queue WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// GetPendingJobs returns due pending and retry jobs, oldest first.
func (db *DB) GetPendingJobs(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := db.SelectContext(ctx, &jobs, `SELECT `+jobColumns+` FROM job_queue
		WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at ASC, id ASC LIMIT ?`, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob moves a pending or retry job to processing. Losing the race
// returns ErrConcurrentModification.
func (db *DB) ClaimJob(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE job_queue SET status = ?
		WHERE id = ? AND status IN ('pending', 'retry')`, models.JobProcessing, id)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := time.Now()

	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	switch status {
	case models.JobRetry:
		query = `UPDATE job_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastError, nextRetryAt, id}
	case models.JobCompleted, models.JobFailed:
		query = `UPDATE job_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, lastError, nextRetryAt, now, id}
	default:
		query = `UPDATE job_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, lastError, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// RequeueProcessingJobs returns jobs left in processing by a crashed run to
// the queue.
func (db *DB) RequeueProcessingJobs(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE job_queue SET status = ? WHERE status = ?`,
		models.JobPending, models.JobProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue jobs: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) GetFailedJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := db.SelectContext(ctx, &jobs, `SELECT `+jobColumns+` FROM job_queue
		WHERE status = 'failed' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed jobs: %w", err)
	}
	return jobs, nil
}
