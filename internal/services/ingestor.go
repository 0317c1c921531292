package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/screener-back/internal/aggregation"
	"github.com/screener-back/pkg/models"
)

// symbolTimeout bounds one symbol's unit of work once it is detached from
// the cycle context
const symbolTimeout = 30 * time.Second

// TickerSource is the exchange side of one market segment
type TickerSource interface {
	Market() models.MarketType
	FetchTickers(ctx context.Context) ([]models.RawTicker, error)
	FetchOpenInterest(ctx context.Context, symbol string) float64
	FetchFundingRate(ctx context.Context, symbol string) float64
}

// SnapshotStore persists symbols and snapshots
type SnapshotStore interface {
	GetOrCreateSymbol(ctx context.Context, code string, market models.MarketType) (*models.Symbol, error)
	LatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error)
	LatestSnapshotByTicker(ctx context.Context, code string, market models.MarketType) (*models.Snapshot, error)
	AppendSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// SnapshotCache keeps the newest snapshot per symbol
type SnapshotCache interface {
	SetLatestSnapshot(ctx context.Context, snap *models.Snapshot) error
	InvalidateLatestSnapshot(ctx context.Context, symbolID int64) error
}

// EventPublisher fans stored snapshots and cycle summaries out to subscribers
type EventPublisher interface {
	PublishSnapshot(snap *models.Snapshot) error
	PublishCycle(event *models.IngestCycle) error
}

// SeriesWriter mirrors snapshots into a time-series store
type SeriesWriter interface {
	WriteSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// IngestorOptions configures an Ingestor
type IngestorOptions struct {
	Interval   time.Duration
	Workers    int
	MaxBackoff time.Duration
}

// Ingestor polls one market segment and appends a snapshot per symbol
type Ingestor struct {
	source TickerSource
	store  SnapshotStore
	market models.MarketType
	opts   IngestorOptions

	cache     SnapshotCache
	publisher EventPublisher
	series    SeriesWriter

	now    func() time.Time
	logger *logrus.Entry

	mu      sync.RWMutex
	symbols map[string]int64
}

// NewIngestor creates an ingestor for the source's market segment
func NewIngestor(source TickerSource, store SnapshotStore, opts IngestorOptions, logger *logrus.Logger) *Ingestor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Minute
	}

	market := source.Market()
	return &Ingestor{
		source:  source,
		store:   store,
		market:  market,
		opts:    opts,
		now:     time.Now,
		logger:  logger.WithFields(logrus.Fields{"component": "ingestor", "market": market}),
		symbols: make(map[string]int64),
	}
}

// WithCache sets the latest-snapshot cache
func (i *Ingestor) WithCache(cache SnapshotCache) *Ingestor {
	i.cache = cache
	return i
}

// WithPublisher sets the event publisher
func (i *Ingestor) WithPublisher(p EventPublisher) *Ingestor {
	i.publisher = p
	return i
}

// WithSeries sets the time-series mirror
func (i *Ingestor) WithSeries(w SeriesWriter) *Ingestor {
	i.series = w
	return i
}

// Run executes cycles until ctx is cancelled. Each cycle targets the
// configured interval; an overrun starts the next cycle immediately and a
// failed cycle is retried with exponential backoff.
func (i *Ingestor) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.opts.Interval
	b.MaxInterval = i.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	i.logger.WithFields(logrus.Fields{
		"interval": i.opts.Interval,
		"workers":  i.opts.Workers,
	}).Info("Starting ingestion loop")

	for {
		if ctx.Err() != nil {
			i.logger.Info("Ingestion loop stopped")
			return nil
		}

		started := time.Now()
		stats, err := i.RunCycle(ctx)

		var wait time.Duration
		if err != nil {
			if ctx.Err() != nil {
				i.logger.Info("Ingestion loop stopped")
				return nil
			}
			wait = b.NextBackOff()
			i.logger.WithError(err).WithField("retry_in", wait).Error("Ingestion cycle failed")
		} else {
			b.Reset()
			wait = i.opts.Interval - time.Since(started)
			if wait < 0 {
				wait = 0
			}
		}

		if stats != nil {
			i.publishCycle(stats)
		}

		if !sleepContext(ctx, wait) {
			i.logger.Info("Ingestion loop stopped")
			return nil
		}
	}
}

// RunCycle performs one fetch-derive-append pass. A failed bulk fetch aborts
// the cycle; per-symbol failures are logged and counted.
func (i *Ingestor) RunCycle(ctx context.Context) (*models.IngestCycle, error) {
	started := i.now().UTC()
	stats := &models.IngestCycle{Market: i.market, StartedAt: started}

	tickers, err := i.source.FetchTickers(ctx)
	if err != nil {
		stats.Duration = i.now().Sub(started)
		return stats, fmt.Errorf("failed to fetch %s tickers: %w", i.market, err)
	}
	stats.Tickers = len(tickers)

	var stored, failed, skipped int64

	var g errgroup.Group
	g.SetLimit(i.opts.Workers)

	for n, raw := range tickers {
		if ctx.Err() != nil {
			atomic.AddInt64(&skipped, int64(len(tickers)-n))
			break
		}

		raw := raw
		g.Go(func() error {
			if ctx.Err() != nil {
				atomic.AddInt64(&skipped, 1)
				return nil
			}

			unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), symbolTimeout)
			defer cancel()

			if err := i.ingestTicker(unitCtx, raw, started); err != nil {
				atomic.AddInt64(&failed, 1)
				i.logger.WithError(err).WithField("symbol", raw.Symbol).Warn("Failed to ingest symbol")
				return nil
			}
			atomic.AddInt64(&stored, 1)
			return nil
		})
	}
	_ = g.Wait()

	stats.Stored = int(stored)
	stats.Failed = int(failed)
	stats.Skipped = int(skipped)
	stats.Duration = i.now().Sub(started)

	i.logger.WithFields(logrus.Fields{
		"tickers":  stats.Tickers,
		"stored":   stats.Stored,
		"failed":   stats.Failed,
		"skipped":  stats.Skipped,
		"duration": stats.Duration,
	}).Info("Ingestion cycle completed")

	return stats, nil
}

func (i *Ingestor) ingestTicker(ctx context.Context, raw models.RawTicker, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while ingesting: %v", r)
		}
	}()

	ticker, err := aggregation.ParseTicker(raw)
	if err != nil {
		return err
	}

	symbolID, err := i.symbolID(ctx, ticker.Symbol)
	if err != nil {
		return err
	}

	var snap *models.Snapshot
	switch i.market {
	case models.MarketFutures:
		oi := i.source.FetchOpenInterest(ctx, ticker.Symbol)
		funding := i.source.FetchFundingRate(ctx, ticker.Symbol)

		prev, err := i.store.LatestSnapshot(ctx, symbolID)
		if err != nil {
			return err
		}

		snap = aggregation.DeriveFutures(aggregation.FuturesInput{
			SymbolID:     symbolID,
			Ticker:       ticker,
			OpenInterest: oi,
			FundingRate:  funding,
			Previous:     prev,
			At:           at,
		})
	case models.MarketSpot:
		futures, err := i.store.LatestSnapshotByTicker(ctx, ticker.Symbol, models.MarketFutures)
		if err != nil {
			return err
		}

		snap = aggregation.DeriveSpot(aggregation.SpotInput{
			SymbolID: symbolID,
			Ticker:   ticker,
			Futures:  futures,
			At:       at,
		})
	default:
		return fmt.Errorf("unsupported market %q", i.market)
	}

	if err := i.store.AppendSnapshot(ctx, snap); err != nil {
		// The symbol row may have been removed underneath the memo
		i.forgetSymbol(ticker.Symbol)
		return err
	}

	i.fanOut(ctx, snap)
	return nil
}

// symbolID resolves a ticker code, creating the symbol on first sight
func (i *Ingestor) symbolID(ctx context.Context, code string) (int64, error) {
	i.mu.RLock()
	id, ok := i.symbols[code]
	i.mu.RUnlock()
	if ok {
		return id, nil
	}

	sym, err := i.store.GetOrCreateSymbol(ctx, code, i.market)
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	i.symbols[code] = sym.ID
	i.mu.Unlock()
	return sym.ID, nil
}

func (i *Ingestor) forgetSymbol(code string) {
	i.mu.Lock()
	delete(i.symbols, code)
	i.mu.Unlock()
}

// fanOut pushes a stored snapshot to the optional sinks. Failures are logged
// only, the snapshot is already durable.
func (i *Ingestor) fanOut(ctx context.Context, snap *models.Snapshot) {
	log := i.logger.WithField("symbol", snap.Symbol)

	if i.cache != nil {
		if err := i.cache.SetLatestSnapshot(ctx, snap); err != nil {
			log.WithError(err).Warn("Failed to cache snapshot, evicting cached entry")
			// A stale entry must not outlive a failed write
			if err := i.cache.InvalidateLatestSnapshot(ctx, snap.SymbolID); err != nil {
				log.WithError(err).Warn("Failed to evict cached snapshot")
			}
		}
	}
	if i.publisher != nil {
		if err := i.publisher.PublishSnapshot(snap); err != nil {
			log.WithError(err).Debug("Failed to publish snapshot")
		}
	}
	if i.series != nil {
		if err := i.series.WriteSnapshot(ctx, snap); err != nil {
			log.WithError(err).Debug("Failed to write snapshot point")
		}
	}
}

func (i *Ingestor) publishCycle(stats *models.IngestCycle) {
	if i.publisher == nil {
		return
	}
	if err := i.publisher.PublishCycle(stats); err != nil {
		i.logger.WithError(err).Debug("Failed to publish cycle summary")
	}
}

// sleepContext waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
