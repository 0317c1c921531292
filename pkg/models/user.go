package models

import "time"

// User owns alert rules
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// UserProfile is the companion record created together with every user
type UserProfile struct {
	UserID         int64     `json:"user_id" db:"user_id"`
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	EmailVerified  bool      `json:"email_verified" db:"email_verified"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewUser is the validated input for creating a user
type NewUser struct {
	Email          string `json:"email" validate:"required,email,max=255"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
	TelegramChatID *int64 `json:"telegram_chat_id" validate:"omitempty,ne=0"`
}
