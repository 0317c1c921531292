package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/screener-back/pkg/models"
)

const alertRuleSelect = `
	SELECT a.id, a.user_id, a.symbol_id, sym.symbol, sym.market_type,
	       a.metric, a.operator, a.threshold, a.telegram_chat_id,
	       a.active, a.created_at, a.last_triggered_at
	FROM alert_rules a
	JOIN symbols sym ON sym.id = a.symbol_id
`

func scanAlertRule(scan func(...interface{}) error) (*models.AlertRule, error) {
	var (
		rule      models.AlertRule
		userID    sql.NullInt64
		chatID    sql.NullInt64
		triggered sql.NullTime
	)

	err := scan(
		&rule.ID,
		&userID,
		&rule.SymbolID,
		&rule.Symbol,
		&rule.MarketType,
		&rule.Metric,
		&rule.Operator,
		&rule.Threshold,
		&chatID,
		&rule.Active,
		&rule.CreatedAt,
		&triggered,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		rule.UserID = &userID.Int64
	}
	if chatID.Valid {
		rule.ChatID = &chatID.Int64
	}
	if triggered.Valid {
		t := triggered.Time.UTC()
		rule.LastTriggeredAt = &t
	}
	return &rule, nil
}

func (mc *MySQLClient) queryAlertRules(ctx context.Context, query string, args ...interface{}) ([]*models.AlertRule, error) {
	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanAlertRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// ActiveAlertRules returns every active rule with its symbol
func (mc *MySQLClient) ActiveAlertRules(ctx context.Context) ([]*models.AlertRule, error) {
	return mc.queryAlertRules(ctx, alertRuleSelect+" WHERE a.active = 1 ORDER BY a.id")
}

// ListAlertRules returns all rules, optionally restricted to one user
func (mc *MySQLClient) ListAlertRules(ctx context.Context, userID *int64) ([]*models.AlertRule, error) {
	if userID != nil {
		return mc.queryAlertRules(ctx, alertRuleSelect+" WHERE a.user_id = ? ORDER BY a.id", *userID)
	}
	return mc.queryAlertRules(ctx, alertRuleSelect+" ORDER BY a.id")
}

// GetAlertRule returns one rule; nil when absent
func (mc *MySQLClient) GetAlertRule(ctx context.Context, id int64) (*models.AlertRule, error) {
	row := mc.db.QueryRowContext(ctx, alertRuleSelect+" WHERE a.id = ?", id)
	rule, err := scanAlertRule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return rule, nil
}

// MarkAlertTriggered records the time a rule fired. It is the only field
// the evaluator writes.
func (mc *MySQLClient) MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	_, err := mc.db.ExecContext(ctx,
		"UPDATE alert_rules SET last_triggered_at = ? WHERE id = ?",
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark alert rule %d triggered: %w", id, err)
	}
	return nil
}

// CreateAlertRule inserts a rule and sets its ID and CreatedAt
func (mc *MySQLClient) CreateAlertRule(ctx context.Context, rule *models.AlertRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	result, err := mc.db.ExecContext(ctx, `
		INSERT INTO alert_rules (
			user_id, symbol_id, metric, operator, threshold,
			telegram_chat_id, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nullInt64(rule.UserID),
		rule.SymbolID,
		string(rule.Metric),
		string(rule.Operator),
		rule.Threshold,
		nullInt64(rule.ChatID),
		rule.Active,
		rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read alert rule id: %w", err)
	}
	rule.ID = id
	return nil
}

// SetAlertRuleActive toggles a rule. It reports false when no rule matched.
func (mc *MySQLClient) SetAlertRuleActive(ctx context.Context, id int64, active bool) (bool, error) {
	result, err := mc.db.ExecContext(ctx, "UPDATE alert_rules SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return false, fmt.Errorf("failed to update alert rule %d: %w", id, err)
	}

	// MySQL reports 0 affected rows when the flag already had this value
	if ok, err := affected(result); err != nil || ok {
		return ok, err
	}
	rule, err := mc.GetAlertRule(ctx, id)
	return rule != nil, err
}

// DeleteAlertRule removes a rule. It reports false when no rule matched.
func (mc *MySQLClient) DeleteAlertRule(ctx context.Context, id int64) (bool, error) {
	result, err := mc.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert rule %d: %w", id, err)
	}
	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
