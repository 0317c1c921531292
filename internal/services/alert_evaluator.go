package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/screener-back/pkg/format"
	"github.com/screener-back/pkg/models"
)

// AlertRuleStore loads rules and records when they fire
type AlertRuleStore interface {
	ActiveAlertRules(ctx context.Context) ([]*models.AlertRule, error)
	MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error
}

// SnapshotReader returns a symbol's newest snapshot, nil if none
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error)
}

// Notifier delivers a text message to a chat
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// AlertPublisher announces fired alerts
type AlertPublisher interface {
	PublishAlert(event *models.AlertEvent) error
}

// EvalStats summarises one evaluation pass
type EvalStats struct {
	Rules        int `json:"rules"`
	Fired        int `json:"fired"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	NotifyFailed int `json:"notify_failed"`
}

type ruleOutcome int

const (
	outcomeNotMet ruleOutcome = iota
	outcomeSkipped
	outcomeFired
	outcomeFiredUndelivered
)

// AlertEvaluator checks active rules against the latest snapshots
type AlertEvaluator struct {
	rules     AlertRuleStore
	snapshots SnapshotReader
	notifier  Notifier
	publisher AlertPublisher
	cooldown  time.Duration
	now       func() time.Time
	logger    *logrus.Entry
}

// NewAlertEvaluator creates an evaluator with the given cooldown
func NewAlertEvaluator(rules AlertRuleStore, snapshots SnapshotReader, notifier Notifier, cooldown time.Duration, logger *logrus.Logger) *AlertEvaluator {
	return &AlertEvaluator{
		rules:     rules,
		snapshots: snapshots,
		notifier:  notifier,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    logger.WithField("component", "alert-evaluator"),
	}
}

// WithPublisher sets the publisher fired alerts are announced on
func (e *AlertEvaluator) WithPublisher(p AlertPublisher) *AlertEvaluator {
	e.publisher = p
	return e
}

// WithClock replaces the evaluation clock
func (e *AlertEvaluator) WithClock(now func() time.Time) *AlertEvaluator {
	e.now = now
	return e
}

// Evaluate runs one pass over all active rules. A rule keeps firing once per
// cooldown window for as long as its condition holds. Only a failure to load
// the rules is returned, per-rule failures are logged and counted.
func (e *AlertEvaluator) Evaluate(ctx context.Context) (EvalStats, error) {
	var stats EvalStats

	rules, err := e.rules.ActiveAlertRules(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load alert rules: %w", err)
	}
	stats.Rules = len(rules)

	now := e.now().UTC()

	for _, rule := range rules {
		if ctx.Err() != nil {
			e.logger.Info("Evaluation interrupted")
			break
		}

		// A started rule runs to completion
		outcome, err := e.evaluateRule(context.WithoutCancel(ctx), rule, now)
		if err != nil {
			stats.Failed++
			e.logger.WithError(err).WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"symbol":  rule.Symbol,
			}).Error("Failed to evaluate alert rule")
			continue
		}

		switch outcome {
		case outcomeSkipped:
			stats.Skipped++
		case outcomeFired:
			stats.Fired++
		case outcomeFiredUndelivered:
			stats.Fired++
			stats.NotifyFailed++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"rules":         stats.Rules,
		"fired":         stats.Fired,
		"skipped":       stats.Skipped,
		"failed":        stats.Failed,
		"notify_failed": stats.NotifyFailed,
	}).Info("Alert evaluation completed")

	return stats, nil
}

// RunEvery evaluates immediately and then on every tick of interval until
// ctx is cancelled
func (e *AlertEvaluator) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.Evaluate(ctx); err != nil {
			e.logger.WithError(err).Error("Alert evaluation failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *AlertEvaluator) evaluateRule(ctx context.Context, rule *models.AlertRule, now time.Time) (outcome ruleOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	log := e.logger.WithFields(logrus.Fields{"rule_id": rule.ID, "symbol": rule.Symbol})

	if rule.ChatID == nil || *rule.ChatID == 0 {
		log.Debug("No destination, skipping")
		return outcomeSkipped, nil
	}

	if rule.InCooldown(now, e.cooldown) {
		log.Debug("In cooldown, skipping")
		return outcomeSkipped, nil
	}

	snap, err := e.snapshots.LatestSnapshot(ctx, rule.SymbolID)
	if err != nil {
		return outcomeNotMet, err
	}
	if snap == nil {
		log.Debug("No snapshot yet, skipping")
		return outcomeSkipped, nil
	}

	value, ok := rule.Metric.Value(snap)
	if !ok {
		return outcomeNotMet, fmt.Errorf("unknown metric %q", rule.Metric)
	}

	met, err := rule.Operator.Compare(value, rule.Threshold)
	if err != nil {
		return outcomeNotMet, err
	}
	if !met {
		return outcomeNotMet, nil
	}

	delivered := true
	if err := e.notifier.Send(ctx, *rule.ChatID, AlertMessage(rule, snap, value)); err != nil {
		delivered = false
		log.WithError(err).Warn("Failed to send alert notification")
	}

	// Recorded whether or not delivery succeeded
	if err := e.rules.MarkAlertTriggered(ctx, rule.ID, now); err != nil {
		return outcomeNotMet, fmt.Errorf("failed to mark rule triggered: %w", err)
	}
	rule.LastTriggeredAt = &now

	log.WithFields(logrus.Fields{
		"metric":    rule.Metric,
		"value":     value,
		"threshold": rule.Threshold,
		"delivered": delivered,
	}).Info("Alert fired")

	e.publish(rule, value, delivered, now)

	if !delivered {
		return outcomeFiredUndelivered, nil
	}
	return outcomeFired, nil
}

func (e *AlertEvaluator) publish(rule *models.AlertRule, value float64, delivered bool, at time.Time) {
	if e.publisher == nil {
		return
	}
	event := &models.AlertEvent{
		RuleID:     rule.ID,
		Symbol:     rule.Symbol,
		MarketType: rule.MarketType,
		Metric:     rule.Metric,
		Operator:   rule.Operator,
		Threshold:  rule.Threshold,
		Value:      value,
		Delivered:  delivered,
		FiredAt:    at,
	}
	if err := e.publisher.PublishAlert(event); err != nil {
		e.logger.WithError(err).WithField("rule_id", rule.ID).Debug("Failed to publish alert event")
	}
}

// AlertMessage renders the HTML notification for a fired rule
func AlertMessage(rule *models.AlertRule, snap *models.Snapshot, value float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🔔 <b>%s</b> · %s\n", html.EscapeString(rule.Symbol), rule.MarketType)
	fmt.Fprintf(&b, "%s %s %s\n",
		html.EscapeString(rule.Metric.Label()),
		html.EscapeString(string(rule.Operator)),
		format.Metric(rule.Metric, rule.Threshold))
	fmt.Fprintf(&b, "Current: %s\n", format.Metric(rule.Metric, value))
	fmt.Fprintf(&b, "Threshold: %s\n", format.Metric(rule.Metric, rule.Threshold))
	b.WriteString(snap.Timestamp.UTC().Format("2006-01-02 15:04:05") + " UTC")

	return b.String()
}
