//go:build integration
// +build integration

package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/logger"
	"github.com/screener-back/pkg/models"
)

func requireMySQL(t *testing.T) *MySQLClient {
	t.Helper()
	if os.Getenv("MYSQL_HOST") == "" {
		t.Skip("MySQL not configured (MYSQL_HOST unset)")
	}

	cfg, err := config.LoadWithLookuper(envconfig.OsLookuper())
	require.NoError(t, err)

	client, err := NewMySQLClient(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrator := NewMigrator(client.DB(), filepath.Join("..", "..", "migrations"))
	migrations, err := migrator.Status(ctx)
	require.NoError(t, err)
	for _, m := range migrations {
		if !m.Applied {
			require.NoError(t, migrator.Apply(ctx, m))
		}
	}

	return client
}

func uniqueCode(prefix string) string {
	return prefix + time.Now().Format("150405.000000")[7:] + "USDT"
}

func TestGetOrCreateSymbolConcurrent(t *testing.T) {
	client := requireMySQL(t)
	ctx := context.Background()
	code := uniqueCode("RACE")

	const callers = 16
	ids := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym, err := client.GetOrCreateSymbol(ctx, code, models.MarketFutures)
			assert.NoError(t, err)
			if sym != nil {
				ids[i] = sym.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	var count int
	require.NoError(t, client.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM symbols WHERE symbol = ? AND market_type = ?", code, "futures",
	).Scan(&count))
	assert.Equal(t, 1, count)

	spot, err := client.GetOrCreateSymbol(ctx, code, models.MarketSpot)
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], spot.ID, "markets keep independent symbols")
}

func TestSnapshotQueries(t *testing.T) {
	client := requireMySQL(t)
	ctx := context.Background()

	a, err := client.GetOrCreateSymbol(ctx, uniqueCode("AAA"), models.MarketFutures)
	require.NoError(t, err)
	b, err := client.GetOrCreateSymbol(ctx, uniqueCode("BBB"), models.MarketFutures)
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, client.AppendSnapshot(ctx, &models.Snapshot{
			SymbolID:     a.ID,
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			Price:        decimal.NewFromInt(int64(100 + i)),
			OpenInterest: float64(1000 + i),
		}))
	}
	require.NoError(t, client.AppendSnapshot(ctx, &models.Snapshot{
		SymbolID:  b.ID,
		Timestamp: base.Add(10 * time.Second),
		Price:     decimal.RequireFromString("0.00001234"),
	}))

	latest, err := client.LatestSnapshot(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "102", latest.Price.String())
	assert.Equal(t, a.Symbol, latest.Symbol)

	byTicker, err := client.LatestSnapshotByTicker(ctx, b.Symbol, models.MarketFutures)
	require.NoError(t, err)
	require.NotNil(t, byTicker)
	assert.Equal(t, "0.00001234", byTicker.Price.String())

	none, err := client.LatestSnapshotByTicker(ctx, b.Symbol, models.MarketSpot)
	require.NoError(t, err)
	assert.Nil(t, none)

	rows, err := client.LatestSnapshotsPerSymbol(ctx, models.MarketFutures, base.Add(-time.Second), models.Page{Size: 500})
	require.NoError(t, err)
	seen := map[int64]int{}
	for _, r := range rows {
		seen[r.SymbolID]++
		if r.SymbolID == a.ID {
			assert.Equal(t, "102", r.Price.String())
		}
	}
	assert.Equal(t, 1, seen[a.ID])
	assert.Equal(t, 1, seen[b.ID])
	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Timestamp.After(rows[i-1].Timestamp))
	}

	history, err := client.SnapshotHistoryWindow(ctx, a.Symbol, models.MarketFutures, 0, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "102", history[0].Price.String())
	assert.Equal(t, "101", history[1].Price.String())
}

func TestAlertRuleLifecycle(t *testing.T) {
	client := requireMySQL(t)
	ctx := context.Background()

	sym, err := client.GetOrCreateSymbol(ctx, uniqueCode("ALR"), models.MarketFutures)
	require.NoError(t, err)

	chatID := int64(424242)
	rule := &models.AlertRule{
		SymbolID:  sym.ID,
		Metric:    models.MetricFundingRate,
		Operator:  models.OpLess,
		Threshold: -0.001,
		ChatID:    &chatID,
		Active:    true,
	}
	require.NoError(t, client.CreateAlertRule(ctx, rule))
	require.NotZero(t, rule.ID)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, client.MarkAlertTriggered(ctx, rule.ID, at))

	got, err := client.GetAlertRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, at.Equal(*got.LastTriggeredAt))
	assert.Equal(t, sym.Symbol, got.Symbol)

	ok, err := client.SetAlertRuleActive(ctx, rule.ID, false)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.SetAlertRuleActive(ctx, rule.ID, false)
	require.NoError(t, err)
	assert.True(t, ok, "unchanged flag still matches the rule")

	ok, err = client.DeleteAlertRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.DeleteAlertRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateUserWithProfile(t *testing.T) {
	client := requireMySQL(t)
	ctx := context.Background()

	email := "it-" + time.Now().Format("20060102150405.000000") + "@example.com"
	user := &models.User{Email: email, PasswordHash: "x", IsActive: true}
	profile := &models.UserProfile{}

	require.NoError(t, client.CreateUserWithProfile(ctx, user, profile))
	require.NotZero(t, user.ID)

	got, err := client.GetUserProfile(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	err = client.CreateUserWithProfile(ctx, &models.User{Email: email, PasswordHash: "y"}, &models.UserProfile{})
	assert.ErrorIs(t, err, ErrEmailTaken)
}
