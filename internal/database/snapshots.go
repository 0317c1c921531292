package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/screener-back/pkg/models"
)

// snapshotMetricColumns lists the stored metric columns in scan order
var snapshotMetricColumns = []string{
	"price", "open_interest", "funding_rate",
	"change_5m", "change_15m", "change_1h", "change_8h", "change_1d",
	"oi_change_5m", "oi_change_15m", "oi_change_1h", "oi_change_8h", "oi_change_1d",
	"volatility_5m", "volatility_15m", "volatility_1h",
	"ticks_5m", "ticks_15m", "ticks_1h",
	"vdelta_5m", "vdelta_15m", "vdelta_1h", "vdelta_8h", "vdelta_1d",
	"volume_5m", "volume_15m", "volume_1h", "volume_8h", "volume_1d",
}

// snapshotSelect renders the select list for a snapshot row joined with
// its symbol. alias prefixes the snapshot columns.
func snapshotSelect(alias string) string {
	cols := make([]string, 0, len(snapshotMetricColumns)+5)
	cols = append(cols, alias+".id", alias+".symbol_id", "sym.symbol", "sym.market_type", alias+".ts")
	for _, c := range snapshotMetricColumns {
		cols = append(cols, alias+"."+c)
	}
	return strings.Join(cols, ", ")
}

func snapshotDest(s *models.Snapshot) []interface{} {
	return []interface{}{
		&s.ID, &s.SymbolID, &s.Symbol, &s.MarketType, &s.Timestamp,
		&s.Price, &s.OpenInterest, &s.FundingRate,
		&s.Change5m, &s.Change15m, &s.Change1h, &s.Change8h, &s.Change1d,
		&s.OIChange5m, &s.OIChange15m, &s.OIChange1h, &s.OIChange8h, &s.OIChange1d,
		&s.Volatility5m, &s.Volatility15m, &s.Volatility1h,
		&s.Ticks5m, &s.Ticks15m, &s.Ticks1h,
		&s.Vdelta5m, &s.Vdelta15m, &s.Vdelta1h, &s.Vdelta8h, &s.Vdelta1d,
		&s.Volume5m, &s.Volume15m, &s.Volume1h, &s.Volume8h, &s.Volume1d,
	}
}

func snapshotValues(s *models.Snapshot) []interface{} {
	return []interface{}{
		s.SymbolID, s.Timestamp.UTC(),
		s.Price, s.OpenInterest, s.FundingRate,
		s.Change5m, s.Change15m, s.Change1h, s.Change8h, s.Change1d,
		s.OIChange5m, s.OIChange15m, s.OIChange1h, s.OIChange8h, s.OIChange1d,
		s.Volatility5m, s.Volatility15m, s.Volatility1h,
		s.Ticks5m, s.Ticks15m, s.Ticks1h,
		s.Vdelta5m, s.Vdelta15m, s.Vdelta1h, s.Vdelta8h, s.Vdelta1d,
		s.Volume5m, s.Volume15m, s.Volume1h, s.Volume8h, s.Volume1d,
	}
}

var insertSnapshotQuery = fmt.Sprintf(
	"INSERT INTO screener_snapshots (symbol_id, ts, %s) VALUES (%s)",
	strings.Join(snapshotMetricColumns, ", "),
	strings.TrimSuffix(strings.Repeat("?, ", len(snapshotMetricColumns)+2), ", "),
)

// AppendSnapshot inserts a snapshot row. Rows are never updated.
func (mc *MySQLClient) AppendSnapshot(ctx context.Context, snap *models.Snapshot) error {
	result, err := mc.db.ExecContext(ctx, insertSnapshotQuery, snapshotValues(snap)...)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot for symbol %d: %w", snap.SymbolID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot of a symbol; nil when none
func (mc *MySQLClient) LatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM screener_snapshots s
		JOIN symbols sym ON sym.id = s.symbol_id
		WHERE s.symbol_id = ?
		ORDER BY s.ts DESC, s.id DESC
		LIMIT 1
	`, snapshotSelect("s"))

	return mc.scanOneSnapshot(mc.db.QueryRowContext(ctx, query, symbolID))
}

// LatestSnapshotByTicker returns the most recent snapshot of (code, market);
// nil when the symbol or its snapshots do not exist
func (mc *MySQLClient) LatestSnapshotByTicker(ctx context.Context, code string, market models.MarketType) (*models.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM screener_snapshots s
		JOIN symbols sym ON sym.id = s.symbol_id
		WHERE sym.symbol = ? AND sym.market_type = ?
		ORDER BY s.ts DESC, s.id DESC
		LIMIT 1
	`, snapshotSelect("s"))

	return mc.scanOneSnapshot(mc.db.QueryRowContext(ctx, query, code, string(market)))
}

func (mc *MySQLClient) scanOneSnapshot(row *sql.Row) (*models.Snapshot, error) {
	snap := &models.Snapshot{}
	err := row.Scan(snapshotDest(snap)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return snap, nil
}

// LatestSnapshotsPerSymbol returns one row per symbol of the market: its
// newest snapshot at or after since. Rows are ordered by timestamp
// descending, then by symbol code.
func (mc *MySQLClient) LatestSnapshotsPerSymbol(ctx context.Context, market models.MarketType, since time.Time, page models.Page) ([]*models.Snapshot, error) {
	page = page.Normalize()

	query := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT s.*,
			       ROW_NUMBER() OVER (PARTITION BY s.symbol_id ORDER BY s.ts DESC, s.id DESC) AS rn
			FROM screener_snapshots s
			JOIN symbols sx ON sx.id = s.symbol_id
			WHERE sx.market_type = ? AND s.ts >= ?
		) ranked
		JOIN symbols sym ON sym.id = ranked.symbol_id
		WHERE ranked.rn = 1
		ORDER BY ranked.ts DESC, sym.symbol ASC
		LIMIT ? OFFSET ?
	`, snapshotSelect("ranked"))

	return mc.querySnapshots(ctx, query, string(market), since.UTC(), page.Size, page.Offset())
}

// CountSymbolsWithSnapshots counts the symbols of a market that have at
// least one snapshot at or after since
func (mc *MySQLClient) CountSymbolsWithSnapshots(ctx context.Context, market models.MarketType, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT s.symbol_id)
		FROM screener_snapshots s
		JOIN symbols sym ON sym.id = s.symbol_id
		WHERE sym.market_type = ? AND s.ts >= ?
	`

	var count int64
	if err := mc.db.QueryRowContext(ctx, query, string(market), since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count symbols: %w", err)
	}
	return count, nil
}

// SnapshotHistoryWindow returns up to limit of a symbol's snapshots, newest
// first, skipping the offset newest rows
func (mc *MySQLClient) SnapshotHistoryWindow(ctx context.Context, code string, market models.MarketType, offset, limit int) ([]*models.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM screener_snapshots s
		JOIN symbols sym ON sym.id = s.symbol_id
		WHERE sym.symbol = ? AND sym.market_type = ?
		ORDER BY s.ts DESC, s.id DESC
		LIMIT ? OFFSET ?
	`, snapshotSelect("s"))

	return mc.querySnapshots(ctx, query, code, string(market), limit, offset)
}

func (mc *MySQLClient) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]*models.Snapshot, error) {
	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]*models.Snapshot, 0)
	for rows.Next() {
		snap := &models.Snapshot{}
		if err := rows.Scan(snapshotDest(snap)...); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// Retention

// CountSnapshotsBefore counts snapshots older than cutoff
func (mc *MySQLClient) CountSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := mc.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM screener_snapshots WHERE ts < ?", cutoff.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count old snapshots: %w", err)
	}
	return count, nil
}

// OldestSnapshotsBefore returns up to limit of the oldest snapshots older
// than cutoff
func (mc *MySQLClient) OldestSnapshotsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM screener_snapshots s
		JOIN symbols sym ON sym.id = s.symbol_id
		WHERE s.ts < ?
		ORDER BY s.ts ASC, s.id ASC
		LIMIT ?
	`, snapshotSelect("s"))

	return mc.querySnapshots(ctx, query, cutoff.UTC(), limit)
}

// DeleteSnapshotsBefore deletes snapshots older than cutoff in batches of
// batchSize rows and returns the number of rows removed
func (mc *MySQLClient) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		result, err := mc.db.ExecContext(ctx,
			"DELETE FROM screener_snapshots WHERE ts < ? ORDER BY ts LIMIT ?",
			cutoff.UTC(), batchSize,
		)
		if err != nil {
			return total, fmt.Errorf("failed to delete old snapshots: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read affected rows: %w", err)
		}
		total += n

		mc.logger.WithField("deleted", total).Debug("Deleted snapshot batch")

		if n < int64(batchSize) {
			return total, nil
		}
	}
}
