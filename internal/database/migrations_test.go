package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screener-back/pkg/models"
)

func TestParseMigration(t *testing.T) {
	content := `-- Migration: demo
-- +migrate Up
CREATE TABLE demo (id INT);

-- trailing comment
-- +migrate Down
DROP TABLE demo;
`
	m, err := ParseMigration("20260101000000_demo_table.sql", content)
	require.NoError(t, err)
	assert.Equal(t, "20260101000000", m.Version)
	assert.Equal(t, "demo_table", m.Name)
	assert.Equal(t, "CREATE TABLE demo (id INT);", m.UpSQL)
	assert.Equal(t, "DROP TABLE demo;", m.DownSQL)
}

func TestParseMigrationRejectsBadInput(t *testing.T) {
	_, err := ParseMigration("nounderscore.sql", "-- +migrate Up\nSELECT 1;")
	assert.Error(t, err)

	_, err = ParseMigration("20260101000000_empty.sql", "-- +migrate Down\nSELECT 1;")
	assert.Error(t, err)
}

func TestLoadRepositoryMigrations(t *testing.T) {
	migrations, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	tables := map[string]bool{}
	for i, m := range migrations {
		if i > 0 {
			assert.Less(t, migrations[i-1].Version, m.Version)
		}
		assert.NotEmpty(t, m.DownSQL, m.Name)
		for _, table := range []string{"users", "user_profiles", "symbols", "screener_snapshots", "alert_rules"} {
			if strings.Contains(m.UpSQL, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				tables[table] = true
			}
		}
	}
	assert.Len(t, tables, 5)
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	migrations, err := LoadMigrations(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestNewMigrationFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)

	path, err := NewMigrationFile(dir, "Add Index", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20261017140000_add_index.sql"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- +migrate Up")
	assert.Contains(t, string(content), "-- +migrate Down")
}

func TestSnapshotColumnsMatchScanOrder(t *testing.T) {
	// id, symbol_id, symbol, market_type, ts precede the metric columns
	assert.Len(t, snapshotDest(new(models.Snapshot)), len(snapshotMetricColumns)+5)
	assert.Len(t, snapshotValues(new(models.Snapshot)), len(snapshotMetricColumns)+2)
	assert.Equal(t, len(snapshotMetricColumns)+2, strings.Count(insertSnapshotQuery, "?"))
}
