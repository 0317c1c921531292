package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/screener-back/pkg/models"
)

// ErrRuleNotFound is returned when an alert rule id matches nothing
var ErrRuleNotFound = errors.New("alert rule not found")

// AlertRuleRepository manages stored alert rules
type AlertRuleRepository interface {
	GetSymbol(ctx context.Context, code string, market models.MarketType) (*models.Symbol, error)
	GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error)
	CreateAlertRule(ctx context.Context, rule *models.AlertRule) error
	ListAlertRules(ctx context.Context, userID *int64) ([]*models.AlertRule, error)
	SetAlertRuleActive(ctx context.Context, id int64, active bool) (bool, error)
	DeleteAlertRule(ctx context.Context, id int64) (bool, error)
}

// AlertRuleService creates and manages alert rules
type AlertRuleService struct {
	repo     AlertRuleRepository
	validate *validator.Validate
	logger   *logrus.Entry
}

// NewAlertRuleService creates an alert rule service
func NewAlertRuleService(repo AlertRuleRepository, logger *logrus.Logger) *AlertRuleService {
	return &AlertRuleService{
		repo:     repo,
		validate: newValidator(),
		logger:   logger.WithField("component", "alert-rules"),
	}
}

// Create validates and stores a new active rule. The symbol must already be
// known. Without an explicit chat id the owner's profile chat id is used.
func (s *AlertRuleService) Create(ctx context.Context, in models.NewAlertRule) (*models.AlertRule, error) {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	market := models.MarketType(in.MarketType)
	sym, err := s.repo.GetSymbol(ctx, in.Symbol, market)
	if err != nil {
		return nil, err
	}
	if sym == nil {
		return nil, fmt.Errorf("unknown symbol %s on %s", in.Symbol, market)
	}

	chatID := in.ChatID
	if chatID == nil && in.UserID != nil {
		profile, err := s.repo.GetUserProfile(ctx, *in.UserID)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			return nil, fmt.Errorf("unknown user %d", *in.UserID)
		}
		chatID = profile.TelegramChatID
	}

	rule := &models.AlertRule{
		UserID:     in.UserID,
		SymbolID:   sym.ID,
		Symbol:     sym.Symbol,
		MarketType: sym.MarketType,
		Metric:     models.Metric(in.Metric),
		Operator:   models.Operator(in.Operator),
		Threshold:  in.Threshold,
		ChatID:     chatID,
		Active:     true,
	}

	if err := s.repo.CreateAlertRule(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"rule_id":   rule.ID,
		"symbol":    rule.Symbol,
		"condition": rule.Condition(),
	}).Info("Alert rule created")

	return rule, nil
}

// List returns the rules of a user, or all rules when userID is nil
func (s *AlertRuleService) List(ctx context.Context, userID *int64) ([]*models.AlertRule, error) {
	return s.repo.ListAlertRules(ctx, userID)
}

// SetActive enables or disables a rule
func (s *AlertRuleService) SetActive(ctx context.Context, id int64, active bool) error {
	ok, err := s.repo.SetAlertRuleActive(ctx, id, active)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	return nil
}

// Delete removes a rule
func (s *AlertRuleService) Delete(ctx context.Context, id int64) error {
	ok, err := s.repo.DeleteAlertRule(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	return nil
}
