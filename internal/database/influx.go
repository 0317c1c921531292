package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/models"
)

// SnapshotMeasurement is the measurement snapshots are mirrored into
const SnapshotMeasurement = "screener_snapshots"

// InfluxClient mirrors snapshots into InfluxDB as time series
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	logger   *logrus.Entry
	org      string
	bucket   string
}

// NewInfluxClient creates a new InfluxDB client
func NewInfluxClient(cfg *config.InfluxConfig, logger *logrus.Logger) *InfluxClient {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())).
			SetLogLevel(0), // Silent - no logs
	)

	return &InfluxClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		logger:   logger.WithField("component", "influxdb"),
		org:      cfg.Org,
		bucket:   cfg.Bucket,
	}
}

// Close closes the InfluxDB client
func (ic *InfluxClient) Close() {
	ic.client.Close()
}

// Health checks InfluxDB health
func (ic *InfluxClient) Health(ctx context.Context) error {
	health, err := ic.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb health check failed: %s", msg)
	}

	return nil
}

// snapshotPoint converts a snapshot to a point tagged by symbol and market
func snapshotPoint(snap *models.Snapshot) *write.Point {
	fields := make(map[string]interface{}, len(models.Metrics()))
	for _, m := range models.Metrics() {
		if v, ok := m.Value(snap); ok {
			fields[string(m)] = v
		}
	}

	return influxdb2.NewPoint(
		SnapshotMeasurement,
		map[string]string{
			"symbol": snap.Symbol,
			"market": string(snap.MarketType),
		},
		fields,
		snap.Timestamp,
	)
}

// WriteSnapshot writes one snapshot point
func (ic *InfluxClient) WriteSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if err := ic.writeAPI.WritePoint(ctx, snapshotPoint(snap)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// SeriesPoint is one value of a metric time series
type SeriesPoint struct {
	Time  time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// SnapshotSeries returns one metric of a symbol between from and to,
// oldest first
func (ic *InfluxClient) SnapshotSeries(ctx context.Context, symbol string, market models.MarketType, metric models.Metric, from, to time.Time) ([]SeriesPoint, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s" and r.market == "%s")
			|> filter(fn: (r) => r._field == "%s")
			|> sort(columns: ["_time"])
	`, ic.bucket, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
		SnapshotMeasurement, fluxEscape(symbol), string(market), string(metric))

	ic.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"market": market,
		"metric": metric,
	}).Debug("Executing InfluxDB series query")

	result, err := ic.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer result.Close()

	points := make([]SeriesPoint, 0)
	for result.Next() {
		record := result.Record()
		v, ok := record.Value().(float64)
		if !ok {
			continue
		}
		points = append(points, SeriesPoint{Time: record.Time(), Value: v})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query error: %w", result.Err())
	}

	return points, nil
}

func fluxEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
