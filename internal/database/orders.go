package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	"github.com/google/uuid"
)

const orderSelect = `SELECT
	o.id AS id, o.external_id AS external_id, o.user_id AS user_id, u.telegram_id AS telegram_id,
	o.tariff AS tariff, o.style AS style, o.status AS status, o.amount AS amount, o.currency AS currency,
	o.payment_method AS payment_method, o.payment_ref AS payment_ref,
	o.generation_task_ref AS generation_task_ref, o.artifact_path AS artifact_path,
	o.failure_reason AS failure_reason, o.created_at AS created_at, o.paid_at AS paid_at,
	o.completed_at AS completed_at, o.updated_at AS updated_at
	FROM orders o JOIN users u ON u.id = o.user_id`

// CreateOrder persists the order and all of its participants in one commit.
// Nothing is written if any participant insert fails.
func (db *DB) CreateOrder(ctx context.Context, draft models.OrderDraft) (*models.Order, error) {
	if len(draft.Participants) == 0 {
		return nil, fmt.Errorf("order without participants")
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `INSERT INTO users (telegram_id, last_activity, created_at, updated_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(telegram_id) DO NOTHING`, draft.TelegramID, now, now, now); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	var userID int64
	if err := tx.GetContext(ctx, &userID, `SELECT id FROM users WHERE telegram_id = ?`, draft.TelegramID); err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	order := &models.Order{
		ExternalID: uuid.NewString(),
		UserID:     userID,
		TelegramID: draft.TelegramID,
		Tariff:     draft.Tariff,
		Style:      draft.Style,
		Status:     models.OrderPending,
		Amount:     draft.Amount,
		Currency:   draft.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO orders
		(external_id, user_id, tariff, style, status, amount, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ExternalID, order.UserID, order.Tariff, order.Style, order.Status,
		order.Amount, order.Currency, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	if order.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get order id: %w", err)
	}

	for i := range draft.Participants {
		p := draft.Participants[i]
		p.OrderID = order.ID
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO order_participants
			(order_id, position, role, full_name, birth_date, birth_time, birth_place)
			VALUES (:order_id, :position, :role, :full_name, :birth_date, :birth_time, :birth_place)`, p); err != nil {
			return nil, fmt.Errorf("failed to insert participant %d: %w", p.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return order, nil
}

func (db *DB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := db.GetContext(ctx, &order, orderSelect+` WHERE o.id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (db *DB) GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	var order models.Order
	if err := db.GetContext(ctx, &order, orderSelect+` WHERE o.external_id = ?`, externalID); err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// FindUserOrderByPrefix resolves a short external id within one user's orders.
func (db *DB) FindUserOrderByPrefix(ctx context.Context, telegramID int64, prefix string) (*models.Order, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || strings.ContainsAny(prefix, "%_") {
		return nil, ErrNotFound
	}
	var order models.Order
	err := db.GetContext(ctx, &order,
		orderSelect+` WHERE u.telegram_id = ? AND o.external_id LIKE ? ORDER BY o.created_at DESC, o.id DESC LIMIT 1`,
		telegramID, prefix+"%")
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (db *DB) ListUserOrders(ctx context.Context, telegramID int64, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := db.SelectContext(ctx, &orders,
		orderSelect+` WHERE u.telegram_id = ? ORDER BY o.created_at DESC, o.id DESC LIMIT ?`, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orders: %w", err)
	}
	return orders, nil
}

func (db *DB) ListOrdersByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := db.SelectContext(ctx, &orders,
		orderSelect+` WHERE o.status = ? ORDER BY o.id LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by status: %w", err)
	}
	return orders, nil
}

// ListStaleProcessing returns orders stuck in processing since before the cutoff.
func (db *DB) ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := db.SelectContext(ctx, &orders,
		orderSelect+` WHERE o.status = ? AND o.updated_at < ? ORDER BY o.updated_at LIMIT ?`,
		models.OrderProcessing, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale orders: %w", err)
	}
	return orders, nil
}

func (db *DB) ListOrdersBetween(ctx context.Context, from, to time.Time) ([]*models.Order, error) {
	var orders []*models.Order
	err := db.SelectContext(ctx, &orders,
		orderSelect+` WHERE o.created_at >= ? AND o.created_at < ? ORDER BY o.created_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (db *DB) GetParticipants(ctx context.Context, orderID int64) ([]*models.Participant, error) {
	var participants []*models.Participant
	err := db.SelectContext(ctx, &participants, `SELECT id, order_id, position, role, full_name,
		birth_date, birth_time, birth_place FROM order_participants WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return participants, nil
}

// compareAndSet updates the order only if it is still in status from.
func (db *DB) compareAndSet(ctx context.Context, where string, whereArgs []any, set string, setArgs ...any) error {
	query := `UPDATE orders SET ` + set + `, updated_at = ? WHERE ` + where
	args := append(append(setArgs, time.Now()), whereArgs...)

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
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

// TransitionStatus moves an order from one status to another atomically.
func (db *DB) TransitionStatus(ctx context.Context, id int64, from, to models.OrderStatus) error {
	return db.compareAndSet(ctx, `id = ? AND status = ?`, []any{id, from}, `status = ?`, to)
}

// MarkPaid records the payment for a pending order. A second confirmation
// for the same order gets ErrConcurrentModification.
func (db *DB) MarkPaid(ctx context.Context, externalID string, method models.PaymentMethod, paymentRef string) (*models.Order, error) {
	if paymentRef == "" {
		return nil, fmt.Errorf("payment reference is required")
	}
	err := db.compareAndSet(ctx,
		`external_id = ? AND status = ?`, []any{externalID, models.OrderPending},
		`status = ?, payment_method = ?, payment_ref = ?, paid_at = ?`,
		models.OrderPaid, method, paymentRef, time.Now())
	if err != nil {
		return nil, err
	}
	return db.GetOrderByExternalID(ctx, externalID)
}

// StartProcessing claims a paid order for generation.
func (db *DB) StartProcessing(ctx context.Context, id int64) error {
	return db.compareAndSet(ctx,
		`id = ? AND status = ? AND payment_ref <> ''`, []any{id, models.OrderPaid},
		`status = ?`, models.OrderProcessing)
}

func (db *DB) SetGenerationTaskRef(ctx context.Context, id int64, taskRef string) error {
	return db.compareAndSet(ctx,
		`id = ? AND status = ?`, []any{id, models.OrderProcessing},
		`generation_task_ref = ?`, taskRef)
}

// CompleteOrder finishes a processing order with its artifact location.
func (db *DB) CompleteOrder(ctx context.Context, id int64, artifactPath string) error {
	return db.compareAndSet(ctx,
		`id = ? AND status = ?`, []any{id, models.OrderProcessing},
		`status = ?, artifact_path = ?, completed_at = ?`,
		models.OrderCompleted, artifactPath, time.Now())
}

// FailOrder moves an order from the given status to failed with a reason.
func (db *DB) FailOrder(ctx context.Context, id int64, from models.OrderStatus, reason string) error {
	return db.compareAndSet(ctx,
		`id = ? AND status = ?`, []any{id, from},
		`status = ?, failure_reason = ?`, models.OrderFailed, reason)
}

func (db *DB) GetOrderDetails(ctx context.Context, id int64) (*models.OrderDetails, error) {
	order, err := db.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := db.GetParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	attempts, err := db.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	review, err := db.GetReviewByOrder(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &models.OrderDetails{Order: order, Participants: participants, Attempts: attempts, Review: review}, nil
}
