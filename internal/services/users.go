package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/screener-back/pkg/models"
)

// UserStore persists users with their profile
type UserStore interface {
	CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.UserProfile) error
}

// UserService creates users
type UserService struct {
	store    UserStore
	validate *validator.Validate
	cost     int
	logger   *logrus.Entry
}

// NewUserService creates a user service
func NewUserService(store UserStore, logger *logrus.Logger) *UserService {
	return &UserService{
		store:    store,
		validate: newValidator(),
		cost:     bcrypt.DefaultCost,
		logger:   logger.WithField("component", "users"),
	}
}

// Create validates the input, hashes the password and stores the user and
// its profile together
func (s *UserService) Create(ctx context.Context, in models.NewUser) (*models.User, *models.UserProfile, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return nil, nil, validationError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
	}
	profile := &models.UserProfile{
		TelegramChatID: in.TelegramChatID,
		CreatedAt:      now,
	}

	if err := s.store.CreateUserWithProfile(ctx, user, profile); err != nil {
		return nil, nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("User created")
	return user, profile, nil
}
