package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/screener-back/pkg/models"
)

// ErrEmailTaken is returned when a user with the same email exists
var ErrEmailTaken = errors.New("email already registered")

// CreateUserWithProfile inserts a user and its companion profile in one
// transaction. Either both rows exist afterwards or neither does.
func (mc *MySQLClient) CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.UserProfile) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}

	return mc.ExecTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO users (email, password_hash, is_active, created_at)
			VALUES (?, ?, ?, ?)
		`, user.Email, user.PasswordHash, user.IsActive, user.CreatedAt)
		if err != nil {
			if isDuplicateKey(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, telegram_chat_id, email_verified, created_at)
			VALUES (?, ?, ?, ?)
		`, id, nullInt64(profile.TelegramChatID), profile.EmailVerified, profile.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert user profile: %w", err)
		}

		user.ID = id
		profile.UserID = id
		return nil
	})
}

// GetUserProfile returns a user's profile; nil when absent
func (mc *MySQLClient) GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var (
		profile models.UserProfile
		chatID  sql.NullInt64
	)

	err := mc.db.QueryRowContext(ctx, `
		SELECT user_id, telegram_chat_id, email_verified, created_at
		FROM user_profiles
		WHERE user_id = ?
	`, userID).Scan(&profile.UserID, &chatID, &profile.EmailVerified, &profile.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	if chatID.Valid {
		profile.TelegramChatID = &chatID.Int64
	}
	return &profile, nil
}
