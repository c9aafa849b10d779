package database

import (
	"context"
	"fmt"
	"time"

	"github.com/adiga-code/numerology/internal/models"
)

// CreateReview stores the single review of an order. A second review for the
// same order returns ErrDuplicate.
func (db *DB) CreateReview(ctx context.Context, review *models.Review) error {
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}
	res, err := db.NamedExecContext(ctx, `INSERT INTO reviews (order_id, user_id, rating, comment, created_at)
		VALUES (:order_id, :user_id, :rating, :comment, :created_at)`, review)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	if review.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get review id: %w", err)
	}
	return nil
}

// SetReviewComment attaches a comment once; later calls are ignored.
func (db *DB) SetReviewComment(ctx context.Context, orderID int64, comment string) error {
	res, err := db.ExecContext(ctx, `UPDATE reviews SET comment = ? WHERE order_id = ? AND comment IS NULL`, comment, orderID)
	if err != nil {
		return fmt.Errorf("failed to set review comment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetReviewByOrder(ctx context.Context, orderID int64) (*models.Review, error) {
	var review models.Review
	err := db.GetContext(ctx, &review, `SELECT id, order_id, user_id, rating, comment, created_at
		FROM reviews WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, notFound(err)
	}
	return &review, nil
}
