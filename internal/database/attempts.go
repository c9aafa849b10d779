package database

import (
	"context"
	"fmt"
	"time"

	"github.com/adiga-code/numerology/internal/models"
)

const attemptColumns = `id, order_id, provider, task_ref, status, error, created_at, updated_at`

// CreateAttempt appends a pending generation attempt for an order.
func (db *DB) CreateAttempt(ctx context.Context, orderID int64, provider string) (*models.GenerationAttempt, error) {
	now := time.Now()
	attempt := &models.GenerationAttempt{
		OrderID:   orderID,
		Provider:  provider,
		Status:    models.AttemptPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := db.NamedExecContext(ctx, `INSERT INTO generation_attempts
		(order_id, provider, task_ref, status, created_at, updated_at)
		VALUES (:order_id, :provider, :task_ref, :status, :created_at, :updated_at)`, attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation attempt: %w", err)
	}
	if attempt.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get attempt id: %w", err)
	}
	return attempt, nil
}

// SetAttemptTaskRef records which provider accepted the job and its reference.
func (db *DB) SetAttemptTaskRef(ctx context.Context, id int64, provider, taskRef string) error {
	_, err := db.ExecContext(ctx, `UPDATE generation_attempts SET provider = ?, task_ref = ?, updated_at = ? WHERE id = ?`,
		provider, taskRef, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set attempt task ref: %w", err)
	}
	return nil
}

// FinishAttempt moves a pending attempt to success or failed. Finished
// attempts are left alone.
func (db *DB) FinishAttempt(ctx context.Context, id int64, status models.AttemptStatus, errText string) error {
	var errValue *string
	if errText != "" {
		errValue = &errText
	}
	res, err := db.ExecContext(ctx, `UPDATE generation_attempts SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`, status, errValue, time.Now(), id, models.AttemptPending)
	if err != nil {
		return fmt.Errorf("failed to finish attempt: %w", err)
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

// LatestAttempt returns the newest attempt for an order.
func (db *DB) LatestAttempt(ctx context.Context, orderID int64) (*models.GenerationAttempt, error) {
	var attempt models.GenerationAttempt
	err := db.GetContext(ctx, &attempt, `SELECT `+attemptColumns+` FROM generation_attempts
		WHERE order_id = ? ORDER BY id DESC LIMIT 1`, orderID)
	if err != nil {
		return nil, notFound(err)
	}
	return &attempt, nil
}

func (db *DB) ListAttempts(ctx context.Context, orderID int64) ([]*models.GenerationAttempt, error) {
	var attempts []*models.GenerationAttempt
	if err := db.SelectContext(ctx, &attempts, `SELECT `+attemptColumns+` FROM generation_attempts
		WHERE order_id = ? ORDER BY id`, orderID); err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}
