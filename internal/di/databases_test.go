package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tunefolio/internal/config"
	testingpkg "github.com/aristath/tunefolio/internal/testing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:        dir,
		TradebookDir:   dir,
		TradebookOrder: "iso",
		Port:           8001,
		Kite:           config.KiteConfig{BaseURL: "http://127.0.0.1:0"},
		Sync: config.SyncConfig{
			Schedules: []string{"0 30 8 * * MON-FRI", "0 0 18 * * MON-FRI"},
			Timezone:  "Asia/Kolkata",
		},
		Backup: config.BackupConfig{Schedule: "0 0 2 * * *"},
	}
}

func TestInitializeDatabases_SQLite(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.CacheDB)
	assert.Nil(t, container.LedgerPool)
	assert.Len(t, container.SQLiteDatabases(), 2)

	assert.FileExists(t, filepath.Join(cfg.DataDir, "ledger.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))

	// Schema applied: the ledger accepts records
	inserted, err := container.Ledger.Ingest(context.Background(), testingpkg.Buy("INFY", "2024-05-10", "1", "100"))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestInitializeDatabases_BadPostgresDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.LedgerDatabaseURL = "://not-a-dsn"

	_, err := InitializeDatabases(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
