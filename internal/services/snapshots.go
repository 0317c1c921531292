package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/screener-back/internal/aggregation"
	"github.com/screener-back/pkg/models"
)

// SnapshotQuerier is the read side of the snapshot store
type SnapshotQuerier interface {
	GetSymbol(ctx context.Context, code string, market models.MarketType) (*models.Symbol, error)
	LatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error)
	LatestSnapshotsPerSymbol(ctx context.Context, market models.MarketType, since time.Time, page models.Page) ([]*models.Snapshot, error)
	CountSymbolsWithSnapshots(ctx context.Context, market models.MarketType, since time.Time) (int64, error)
	SnapshotHistoryWindow(ctx context.Context, code string, market models.MarketType, offset, limit int) ([]*models.Snapshot, error)
}

// LatestCache is the read side of the latest-snapshot cache
type LatestCache interface {
	GetLatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error)
}

// trendMetrics are the columns a history row reports a direction for
var trendMetrics = []models.Metric{
	models.MetricPrice,
	models.MetricVolume15m,
	models.MetricOIChange15m,
}

// HistoryRow is a snapshot with its direction against the next-older row
type HistoryRow struct {
	*models.Snapshot
	Trend map[models.Metric]aggregation.Trend `json:"trend"`
}

// SnapshotService answers snapshot reads. Single-symbol reads prefer the
// cache; market-wide reads always use the ranked store query.
type SnapshotService struct {
	store  SnapshotQuerier
	cache  LatestCache
	logger *logrus.Entry
}

// NewSnapshotService creates a snapshot service. cache may be nil.
func NewSnapshotService(store SnapshotQuerier, cache LatestCache, logger *logrus.Logger) *SnapshotService {
	return &SnapshotService{
		store:  store,
		cache:  cache,
		logger: logger.WithField("component", "snapshots"),
	}
}

// LatestSnapshot returns a symbol's newest snapshot, nil if it has none
func (s *SnapshotService) LatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.GetLatestSnapshot(ctx, symbolID)
		if err == nil && snap != nil {
			return snap, nil
		}
		if err != nil {
			s.logger.WithError(err).WithField("symbol_id", symbolID).Debug("Cache read failed, using database")
		}
	}
	return s.store.LatestSnapshot(ctx, symbolID)
}

// LatestForTicker returns the newest snapshot of a ticker in a market, nil
// when the ticker is unknown or has no snapshot
func (s *SnapshotService) LatestForTicker(ctx context.Context, code string, market models.MarketType) (*models.Snapshot, error) {
	sym, err := s.store.GetSymbol(ctx, code, market)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", code, err)
	}
	if sym == nil {
		return nil, nil
	}
	return s.LatestSnapshot(ctx, sym.ID)
}

// Latest returns one page of the newest snapshot per symbol of a market,
// limited to symbols updated at or after since, and the total row count
func (s *SnapshotService) Latest(ctx context.Context, market models.MarketType, since time.Time, page models.Page) ([]*models.Snapshot, int64, error) {
	page = page.Normalize()

	total, err := s.store.CountSymbolsWithSnapshots(ctx, market, since)
	if err != nil {
		return nil, 0, err
	}
	snaps, err := s.store.LatestSnapshotsPerSymbol(ctx, market, since, page)
	if err != nil {
		return nil, 0, err
	}
	return snaps, total, nil
}

// History returns one page of a symbol's snapshots, newest first, each with
// the direction of selected metrics against the row before it in time
func (s *SnapshotService) History(ctx context.Context, code string, market models.MarketType, page models.Page) ([]HistoryRow, error) {
	page = page.Normalize()

	// One extra row gives the last row of the page something to compare with
	snaps, err := s.store.SnapshotHistoryWindow(ctx, code, market, page.Offset(), page.Size+1)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", code, err)
	}

	n := len(snaps)
	if n > page.Size {
		n = page.Size
	}

	rows := make([]HistoryRow, n)
	for i := 0; i < n; i++ {
		var older *models.Snapshot
		if i+1 < len(snaps) {
			older = snaps[i+1]
		}
		rows[i] = HistoryRow{Snapshot: snaps[i], Trend: trends(snaps[i], older)}
	}
	return rows, nil
}

func trends(current, older *models.Snapshot) map[models.Metric]aggregation.Trend {
	out := make(map[models.Metric]aggregation.Trend, len(trendMetrics))
	for _, m := range trendMetrics {
		cur, ok := m.Value(current)
		if !ok {
			continue
		}
		var prev *float64
		if older != nil {
			if v, ok := m.Value(older); ok {
				prev = &v
			}
		}
		out[m] = aggregation.Direction(&cur, prev)
	}
	return out
}
