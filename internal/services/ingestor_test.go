package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screener-back/pkg/logger"
	"github.com/screener-back/pkg/models"
)

var cycleTime = time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)

func newTestIngestor(source *fakeSource, store *memStore) *Ingestor {
	ing := NewIngestor(source, store, IngestorOptions{
		Interval:   10 * time.Millisecond,
		Workers:    2,
		MaxBackoff: 20 * time.Millisecond,
	}, logger.Discard())
	ing.now = func() time.Time { return cycleTime }
	return ing
}

func futuresTickers() []models.RawTicker {
	return []models.RawTicker{
		{Symbol: "BTCUSDT", LastPrice: "65000.5", PriceChangePercent: "2.4", QuoteVolume: "2880000"},
		{Symbol: "ETHUSDT", LastPrice: "3000", PriceChangePercent: "-4.8", QuoteVolume: "1440000"},
		{Symbol: "BADUSDT", LastPrice: "not-a-price", PriceChangePercent: "1", QuoteVolume: "10"},
	}
}

func findSnapshot(store *memStore, symbol string, market models.MarketType) *models.Snapshot {
	snap, _ := store.LatestSnapshotByTicker(context.Background(), symbol, market)
	return snap
}

func TestIngestorFuturesCycle(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	eth, err := store.GetOrCreateSymbol(ctx, "ETHUSDT", models.MarketFutures)
	require.NoError(t, err)
	store.addSnapshot(&models.Snapshot{
		SymbolID:     eth.ID,
		Symbol:       "ETHUSDT",
		MarketType:   models.MarketFutures,
		Timestamp:    cycleTime.Add(-5 * time.Second),
		OpenInterest: 1000,
	})

	source := &fakeSource{
		market:  models.MarketFutures,
		tickers: futuresTickers(),
		oi:      map[string]float64{"BTCUSDT": 500, "ETHUSDT": 1100},
		funding: map[string]float64{"BTCUSDT": 0.0001, "ETHUSDT": -0.0002},
	}
	pub := &fakePublisher{}
	ing := newTestIngestor(source, store).WithPublisher(pub)

	stats, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Tickers)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, 1, stats.Failed, "a malformed ticker fails alone")
	assert.Equal(t, 0, stats.Skipped)
	assert.Len(t, pub.snapshots, 2)

	btc := findSnapshot(store, "BTCUSDT", models.MarketFutures)
	require.NotNil(t, btc)
	assert.True(t, cycleTime.Equal(btc.Timestamp))
	assert.Equal(t, "65000.5", btc.Price.String())
	assert.Equal(t, 500.0, btc.OpenInterest)
	assert.Equal(t, 0.0001, btc.FundingRate)
	assert.InDelta(t, 0.1, btc.Change1h, 1e-9)
	assert.InDelta(t, 120000.0, btc.Volume1h, 1e-6)
	assert.Equal(t, int64(120), btc.Ticks1h)
	assert.Zero(t, btc.OIChange1h, "no previous snapshot")

	ethSnap := findSnapshot(store, "ETHUSDT", models.MarketFutures)
	require.NotNil(t, ethSnap)
	assert.InDelta(t, 10.0, ethSnap.OIChange1d, 1e-9)
	assert.InDelta(t, 10.0/288, ethSnap.OIChange5m, 1e-9)
	assert.InDelta(t, -0.2*60000/100, ethSnap.Vdelta1h, 1e-6)

	assert.Nil(t, findSnapshot(store, "BADUSDT", models.MarketFutures))
}

func TestIngestorBulkFetchError(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{market: models.MarketFutures, err: errors.New("exchange down")}

	stats, err := newTestIngestor(source, store).RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange down")
	assert.Equal(t, 0, stats.Stored)
	assert.Empty(t, store.snapshots)
}

func TestIngestorSpotBorrowsFutures(t *testing.T) {
	store := newMemStore()
	store.addSnapshot(&models.Snapshot{
		SymbolID:     99,
		Symbol:       "ETHUSDT",
		MarketType:   models.MarketFutures,
		Timestamp:    cycleTime.Add(-time.Second),
		Price:        decimal.NewFromInt(3001),
		OpenInterest: 1234,
		FundingRate:  0.0003,
		OIChange15m:  0.5,
	})

	source := &fakeSource{
		market: models.MarketSpot,
		tickers: []models.RawTicker{
			{Symbol: "ETHUSDT", LastPrice: "3000", PriceChangePercent: "2.4", QuoteVolume: "1000"},
			{Symbol: "XYZUSDT", LastPrice: "1", PriceChangePercent: "0", QuoteVolume: "5"},
		},
	}

	stats, err := newTestIngestor(source, store).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Stored)

	spot := findSnapshot(store, "ETHUSDT", models.MarketSpot)
	require.NotNil(t, spot)
	assert.Equal(t, 1234.0, spot.OpenInterest)
	assert.Equal(t, 0.0003, spot.FundingRate)
	assert.Equal(t, 0.5, spot.OIChange15m)
	assert.InDelta(t, 0.1*1000, spot.Vdelta1h, 1e-9)

	xyz := findSnapshot(store, "XYZUSDT", models.MarketSpot)
	require.NotNil(t, xyz)
	assert.Zero(t, xyz.OpenInterest, "no futures counterpart")
}

func TestIngestorForgetsSymbolOnAppendFailure(t *testing.T) {
	store := newMemStore()
	store.appendErr["ETHUSDT"] = errors.New("foreign key violation")

	source := &fakeSource{market: models.MarketFutures, tickers: futuresTickers()[:2]}
	ing := newTestIngestor(source, store)

	stats, err := ing.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)
	assert.Equal(t, 1, stats.Failed)

	assert.Contains(t, ing.symbols, "BTCUSDT")
	assert.NotContains(t, ing.symbols, "ETHUSDT")
}

func TestIngestorSkipsSymbolsAfterCancel(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())

	source := &fakeSource{
		market:  models.MarketFutures,
		tickers: futuresTickers()[:2],
		onFetch: cancel,
	}

	stats, err := newTestIngestor(source, store).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Stored)
	assert.Empty(t, store.snapshots)
}

func TestIngestorRunRetriesAndStops(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetches int32
	source := &fakeSource{
		market: models.MarketFutures,
		err:    errors.New("exchange down"),
	}
	source.onFetch = func() {
		if atomic.AddInt32(&fetches, 1) == 3 {
			cancel()
		}
	}
	pub := &fakePublisher{}

	done := make(chan error, 1)
	go func() { done <- newTestIngestor(source, store).WithPublisher(pub).Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion loop did not stop")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&fetches))
}

func TestIngestorRunPublishesCycles(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetches int32
	source := &fakeSource{market: models.MarketFutures, tickers: futuresTickers()[:1]}
	source.onFetch = func() {
		if atomic.AddInt32(&fetches, 1) == 2 {
			cancel()
		}
	}
	pub := &fakePublisher{}

	require.NoError(t, newTestIngestor(source, store).WithPublisher(pub).Run(ctx))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.cycles, 2)
	assert.Equal(t, 1, pub.cycles[0].Stored)
	assert.Equal(t, models.MarketFutures, pub.cycles[0].Market)
}

func TestIngestorEvictsCacheOnFailedWrite(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	eth, err := store.GetOrCreateSymbol(ctx, "ETHUSDT", models.MarketFutures)
	require.NoError(t, err)
	stale := &models.Snapshot{
		SymbolID:    eth.ID,
		Symbol:      "ETHUSDT",
		MarketType:  models.MarketFutures,
		Timestamp:   cycleTime.Add(-5 * time.Second),
		FundingRate: -0.002,
	}
	store.addSnapshot(stale)

	cache := newFakeCache()
	require.NoError(t, cache.SetLatestSnapshot(ctx, stale))
	cache.setErr = errors.New("redis: connection reset")

	source := &fakeSource{
		market:  models.MarketFutures,
		tickers: []models.RawTicker{{Symbol: "ETHUSDT", LastPrice: "3000", PriceChangePercent: "9.6", QuoteVolume: "28800000"}},
		funding: map[string]float64{"ETHUSDT": 0.0001},
	}
	ing := newTestIngestor(source, store).WithCache(cache)

	stats, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)
	assert.Contains(t, cache.evicted, eth.ID)

	// Readers fall through to the store and see the new row
	svc := NewSnapshotService(store, cache, logger.Discard())
	latest, err := svc.LatestSnapshot(ctx, eth.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, cycleTime.Equal(latest.Timestamp))
	assert.Equal(t, 0.0001, latest.FundingRate)
}
