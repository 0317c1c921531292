package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/screener-back/pkg/logger"
	"github.com/screener-back/pkg/models"
)

func TestCreateUser(t *testing.T) {
	store := newMemStore()
	svc := NewUserService(store, logger.Discard())
	svc.cost = bcrypt.MinCost

	user, profile, err := svc.Create(context.Background(), models.NewUser{
		Email:          "  Trader@Example.com ",
		Password:       "correct horse",
		TelegramChatID: int64Ptr(42),
	})
	require.NoError(t, err)

	assert.Equal(t, "trader@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.Equal(t, user.ID, profile.UserID)
	assert.Equal(t, int64(42), *profile.TelegramChatID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")))
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewUserService(newMemStore(), logger.Discard())

	tests := []struct {
		name string
		in   models.NewUser
		want string
	}{
		{"missing email", models.NewUser{Password: "longenough"}, "Email is required"},
		{"bad email", models.NewUser{Email: "nope", Password: "longenough"}, "Email failed email validation"},
		{"short password", models.NewUser{Email: "a@b.co", Password: "short"}, "Password failed min validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCreateAlertRule(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	sym, err := store.GetOrCreateSymbol(ctx, "BTCUSDT", models.MarketFutures)
	require.NoError(t, err)
	store.profiles[9] = &models.UserProfile{UserID: 9, TelegramChatID: int64Ptr(555)}

	svc := NewAlertRuleService(store, logger.Discard())

	rule, err := svc.Create(ctx, models.NewAlertRule{
		UserID:     int64Ptr(9),
		Symbol:     "btcusdt",
		MarketType: "futures",
		Metric:     "funding_rate",
		Operator:   "<",
		Threshold:  -0.001,
	})
	require.NoError(t, err)
	assert.Equal(t, sym.ID, rule.SymbolID)
	assert.Equal(t, models.MetricFundingRate, rule.Metric)
	assert.True(t, rule.Active)
	require.NotNil(t, rule.ChatID)
	assert.Equal(t, int64(555), *rule.ChatID, "chat id taken from the profile")

	rules, err := svc.List(ctx, int64Ptr(9))
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	require.NoError(t, svc.SetActive(ctx, rule.ID, false))
	assert.False(t, rule.Active)

	require.NoError(t, svc.Delete(ctx, rule.ID))
	err = svc.Delete(ctx, rule.ID)
	assert.True(t, errors.Is(err, ErrRuleNotFound))
}

func TestCreateAlertRuleRejectsBadInput(t *testing.T) {
	store := newMemStore()
	_, err := store.GetOrCreateSymbol(context.Background(), "BTCUSDT", models.MarketFutures)
	require.NoError(t, err)
	svc := NewAlertRuleService(store, logger.Discard())

	valid := models.NewAlertRule{Symbol: "BTCUSDT", MarketType: "futures", Metric: "change_1h", Operator: ">", ChatID: int64Ptr(1)}

	tests := []struct {
		name   string
		mutate func(*models.NewAlertRule)
		want   string
	}{
		{"unknown metric", func(r *models.NewAlertRule) { r.Metric = "rsi_14" }, "unknown metric"},
		{"bad operator", func(r *models.NewAlertRule) { r.Operator = "==" }, "Operator must be one of"},
		{"bad market", func(r *models.NewAlertRule) { r.MarketType = "options" }, "MarketType must be one of"},
		{"unknown symbol", func(r *models.NewAlertRule) { r.Symbol = "NOPEUSDT" }, "unknown symbol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

type fakeRetention struct {
	count    int64
	examples []*models.Snapshot
	deleted  int64
	cutoff   time.Time
	calls    []string
}

func (f *fakeRetention) CountSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	f.calls = append(f.calls, "count")
	return f.count, nil
}

func (f *fakeRetention) OldestSnapshotsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Snapshot, error) {
	f.calls = append(f.calls, "examples")
	if len(f.examples) > limit {
		return f.examples[:limit], nil
	}
	return f.examples, nil
}

func (f *fakeRetention) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	f.calls = append(f.calls, "delete")
	return f.deleted, nil
}

func TestRetentionCleanup(t *testing.T) {
	now := time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)

	t.Run("dry run", func(t *testing.T) {
		store := &fakeRetention{count: 8, examples: make([]*models.Snapshot, 8)}
		svc := NewRetentionService(store, 100, logger.Discard())
		svc.now = func() time.Time { return now }

		report, err := svc.Cleanup(context.Background(), 24, true)
		require.NoError(t, err)
		assert.True(t, now.Add(-24*time.Hour).Equal(report.Cutoff))
		assert.Equal(t, int64(8), report.Matched)
		assert.Len(t, report.Examples, 5)
		assert.Zero(t, report.Deleted)
		assert.Equal(t, []string{"count", "examples"}, store.calls)
	})

	t.Run("delete", func(t *testing.T) {
		store := &fakeRetention{count: 8, deleted: 8}
		svc := NewRetentionService(store, 100, logger.Discard())
		svc.now = func() time.Time { return now }

		report, err := svc.Cleanup(context.Background(), 48, false)
		require.NoError(t, err)
		assert.Equal(t, int64(8), report.Deleted)
		assert.True(t, now.Add(-48*time.Hour).Equal(store.cutoff))
	})

	t.Run("nothing to delete", func(t *testing.T) {
		store := &fakeRetention{}
		svc := NewRetentionService(store, 100, logger.Discard())

		report, err := svc.Cleanup(context.Background(), 24, false)
		require.NoError(t, err)
		assert.Zero(t, report.Deleted)
		assert.Equal(t, []string{"count"}, store.calls)
	})

	t.Run("invalid hours", func(t *testing.T) {
		_, err := NewRetentionService(&fakeRetention{}, 100, logger.Discard()).Cleanup(context.Background(), 0, true)
		assert.Error(t, err)
	})
}
