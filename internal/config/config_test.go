package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TUNEFOLIO_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "iso", cfg.TradebookOrder)
	assert.Equal(t, dir, cfg.TradebookDir)
	assert.Equal(t, "Asia/Kolkata", cfg.Sync.Timezone)
	assert.Len(t, cfg.Sync.Schedules, 2)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.LedgerPath())
	assert.Equal(t, filepath.Join(dir, "cache.db"), cfg.CachePath())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TUNEFOLIO_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("TRADEBOOK_DATE_ORDER", "mdy")
	t.Setenv("SYNC_SCHEDULES", "0 0 9 * * *; @every 1h")
	t.Setenv("KITE_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "mdy", cfg.TradebookOrder)
	assert.Equal(t, []string{"0 0 9 * * *", "@every 1h"}, cfg.Sync.Schedules)
	assert.Equal(t, "key", cfg.Kite.APIKey)
}

func TestLoad_InvalidDateOrder(t *testing.T) {
	t.Setenv("TUNEFOLIO_DATA_DIR", t.TempDir())
	t.Setenv("TRADEBOOK_DATE_ORDER", "ymd")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRADEBOOK_DATE_ORDER")
}

func TestLoad_FileDateOrders(t *testing.T) {
	t.Setenv("TUNEFOLIO_DATA_DIR", t.TempDir())
	t.Setenv("TRADEBOOK_DATE_ORDERS", "tradebook-2019*.csv:MDY, tradebook-2024.csv:iso")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []FileDateOrder{
		{Pattern: "tradebook-2019*.csv", Order: "mdy"},
		{Pattern: "tradebook-2024.csv", Order: "iso"},
	}, cfg.TradebookOrders)
}

func TestLoad_InvalidFileDateOrders(t *testing.T) {
	for _, value := range []string{"tradebook-2019.csv", "tradebook-2019.csv:ymd", ":mdy", "[:mdy"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("TUNEFOLIO_DATA_DIR", t.TempDir())
			t.Setenv("TRADEBOOK_DATE_ORDERS", value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "TRADEBOOK_DATE_ORDERS")
		})
	}
}

func TestValidate_BackupCredentialsPaired(t *testing.T) {
	cfg := &Config{
		TradebookOrder: "auto",
		Port:           8001,
		Backup:         BackupConfig{Bucket: "ledger", AccessKey: "id"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Backup.SecretKey = "secret"
	assert.NoError(t, cfg.Validate())
}
