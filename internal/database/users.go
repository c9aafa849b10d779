package database

import (
	"context"
	"fmt"
	"time"

	"github.com/adiga-code/numerology/internal/models"
)

const userColumns = `id, telegram_id, username, first_name, last_name, language_code,
	is_manager, is_blacklisted, last_activity, created_at, updated_at`

// CreateOrUpdateUser upserts by telegram_id and fills user.ID.
func (db *DB) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				telegram_id, username, first_name, last_name, language_code,
				is_manager, is_blacklisted, last_activity, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(telegram_id) DO UPDATE SET
                username = excluded.username,
                first_name = excluded.first_name,
                last_name = excluded.last_name,
                language_code = excluded.language_code,
                is_manager = excluded.is_manager,
                is_blacklisted = excluded.is_blacklisted,
                last_activity = excluded.last_activity,
                updated_at = excluded.updated_at`
	now := time.Now()
	lastActivity := user.LastActivity
	if lastActivity.IsZero() {
		lastActivity = now
	}
	if _, err := db.ExecContext(ctx, query,
		user.TelegramID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.LanguageCode,
		user.IsManager,
		user.IsBlacklisted,
		lastActivity,
		now,
		now,
	); err != nil {
		return fmt.Errorf("failed to create or update user: %w", err)
	}

	if err := db.GetContext(ctx, &user.ID, `SELECT id FROM users WHERE telegram_id = ?`, user.TelegramID); err != nil {
		return fmt.Errorf("failed to load user id: %w", err)
	}
	return nil
}

// EnsureUser creates a bare user row for a telegram id if it is missing.
func (db *DB) EnsureUser(ctx context.Context, telegramID int64) (int64, error) {
	now := time.Now()
	if _, err := db.ExecContext(ctx, `INSERT INTO users (telegram_id, last_activity, created_at, updated_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(telegram_id) DO NOTHING`, telegramID, now, now, now); err != nil {
		return 0, fmt.Errorf("failed to ensure user: %w", err)
	}
	var id int64
	if err := db.GetContext(ctx, &id, `SELECT id FROM users WHERE telegram_id = ?`, telegramID); err != nil {
		return 0, fmt.Errorf("failed to load user id: %w", err)
	}
	return id, nil
}

func (db *DB) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (db *DB) UpdateUserActivity(ctx context.Context, telegramID int64) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET last_activity = ? WHERE telegram_id = ?`, time.Now(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to update user activity: %w", err)
	}
	return nil
}

func (db *DB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
