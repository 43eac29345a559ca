package di

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobNames(c *Container) []string {
	var names []string
	for _, job := range c.Scheduler.Status().Jobs {
		names = append(names, job.Name)
	}
	return names
}

func TestRegisterJobs(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()

	container, err := InitializeDatabases(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	require.NoError(t, InitializeServices(context.Background(), container, cfg, log))

	jobs, err := RegisterJobs(container, cfg, log)
	require.NoError(t, err)

	assert.NotNil(t, jobs.TradeSync)
	assert.NotNil(t, jobs.CacheCleanup)
	assert.NotNil(t, jobs.WALCheckpoints)
	assert.NotNil(t, jobs.DailyMaintenance)
	assert.NotNil(t, jobs.WeeklyMaintenance)
	assert.Nil(t, jobs.LedgerBackup, "backups are off without a bucket")
	assert.Len(t, jobs.All(), 5)

	names := jobNames(container)
	assert.Contains(t, names, "trade_sync")
	assert.Contains(t, names, "report_cache_cleanup")
	assert.NotContains(t, names, "ledger_backup")
	// Two sync schedules, one registration each
	count := 0
	for _, n := range names {
		if n == "trade_sync" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestRegisterJobs_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Schedules = []string{"not a cron spec"}
	log := zerolog.Nop()

	container, err := InitializeDatabases(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	require.NoError(t, InitializeServices(context.Background(), container, cfg, log))

	_, err = RegisterJobs(container, cfg, log)
	assert.Error(t, err)
}

func TestRegisterJobs_InvalidTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Timezone = "Mars/Olympus_Mons"

	_, err := RegisterJobs(&Container{}, cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs_NilContainer(t *testing.T) {
	_, err := RegisterJobs(nil, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}
