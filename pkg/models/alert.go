package models

import (
	"fmt"
	"time"
)

// AlertRule is a user-defined watch condition on one symbol's metric
type AlertRule struct {
	ID              int64      `json:"id" db:"id"`
	UserID          *int64     `json:"user_id,omitempty" db:"user_id"`
	SymbolID        int64      `json:"symbol_id" db:"symbol_id"`
	Symbol          string     `json:"symbol" db:"symbol"`
	MarketType      MarketType `json:"market_type" db:"market_type"`
	Metric          Metric     `json:"metric" db:"metric"`
	Operator        Operator   `json:"operator" db:"operator"`
	Threshold       float64    `json:"threshold" db:"threshold"`
	ChatID          *int64     `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	Active          bool       `json:"active" db:"active"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
}

// Condition renders "metric op threshold"
func (r *AlertRule) Condition() string {
	return fmt.Sprintf("%s %s %g", r.Metric, r.Operator, r.Threshold)
}

// InCooldown reports whether the rule fired less than cooldown before now
func (r *AlertRule) InCooldown(now time.Time, cooldown time.Duration) bool {
	if r.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*r.LastTriggeredAt) < cooldown
}

// NewAlertRule is the validated input for creating a rule
type NewAlertRule struct {
	UserID     *int64  `json:"user_id" validate:"omitempty,gt=0"`
	Symbol     string  `json:"symbol" validate:"required,uppercase,max=20"`
	MarketType string  `json:"market_type" validate:"required,oneof=spot futures"`
	Metric     string  `json:"metric" validate:"required,metric"`
	Operator   string  `json:"operator" validate:"required,oneof=> < >= <="`
	Threshold  float64 `json:"threshold"`
	ChatID     *int64  `json:"telegram_chat_id" validate:"omitempty,ne=0"`
}

// AlertEvent is published when a rule fires
type AlertEvent struct {
	RuleID     int64      `json:"rule_id"`
	Symbol     string     `json:"symbol"`
	MarketType MarketType `json:"market_type"`
	Metric     Metric     `json:"metric"`
	Operator   Operator   `json:"operator"`
	Threshold  float64    `json:"threshold"`
	Value      float64    `json:"value"`
	Delivered  bool       `json:"delivered"`
	FiredAt    time.Time  `json:"fired_at"`
}
