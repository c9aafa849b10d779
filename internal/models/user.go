package models

import "time"

type User struct {
	ID            int64     `db:"id" json:"id"`
	TelegramID    int64     `db:"telegram_id" json:"telegram_id"`
	Username      string    `db:"username" json:"username"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	LanguageCode  string    `db:"language_code" json:"language_code"`
	IsManager     bool      `db:"is_manager" json:"is_manager"`
	IsBlacklisted bool      `db:"is_blacklisted" json:"is_blacklisted"`
	LastActivity  time.Time `db:"last_activity" json:"last_activity"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
