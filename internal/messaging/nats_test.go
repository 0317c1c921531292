package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/screener-back/pkg/models"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "snapshots.futures.BTCUSDT", SnapshotSubject(models.MarketFutures, "BTCUSDT"))
	assert.Equal(t, "snapshots.spot.BAD_SYM_", SnapshotSubject(models.MarketSpot, "BAD.SYM>"))
	assert.Equal(t, "ingest.spot.cycle", CycleSubject(models.MarketSpot))
}

func TestStreamsCoverSubjects(t *testing.T) {
	subjects := map[string]string{}
	for _, cfg := range streamConfigs() {
		for _, s := range cfg.Subjects {
			subjects[s] = cfg.Name
		}
	}

	assert.Equal(t, "SNAPSHOTS", subjects["snapshots.>"])
	assert.Equal(t, "ALERTS", subjects["alerts.>"])
	assert.Equal(t, "INGEST", subjects["ingest.>"])
}
