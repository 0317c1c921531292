package database

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/screener-back/pkg/models"
)

func TestSnapshotPoint(t *testing.T) {
	ts := time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)
	snap := &models.Snapshot{
		Symbol:      "ETHUSDT",
		MarketType:  models.MarketFutures,
		Timestamp:   ts,
		Price:       decimal.RequireFromString("3000"),
		Change1h:    0.4,
		Ticks1h:     120,
		FundingRate: -0.002,
	}

	line := write.PointToLineProtocol(snapshotPoint(snap), time.Second)

	assert.True(t, strings.HasPrefix(line, "screener_snapshots,market=futures,symbol=ETHUSDT "), line)
	assert.Contains(t, line, "change_1h=0.4")
	assert.Contains(t, line, "ticks_1h=120")
	assert.Contains(t, line, "price=3000")
	assert.Contains(t, line, "funding_rate=-0.002")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), " 1792245600"), line)
}

func TestFluxEscape(t *testing.T) {
	assert.Equal(t, `BAD\"SYM`, fluxEscape(`BAD"SYM`))
}
