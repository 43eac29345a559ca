package reliability

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/tunefolio/internal/testing"
)

func stubDiskUsage(t *testing.T, free uint64, err error) {
	t.Helper()
	original := diskUsage
	diskUsage = func(string) (uint64, error) { return free, err }
	t.Cleanup(func() { diskUsage = original })
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	ledger, cleanupLedger := testingpkg.NewTestDB(t, "ledger")
	defer cleanupLedger()
	cache, cleanupCache := testingpkg.NewTestDB(t, "cache")
	defer cleanupCache()

	stubDiskUsage(t, 50*1024*1024*1024, nil)

	job := NewDailyMaintenanceJob(t.TempDir(), zerolog.Nop(), ledger, cache)
	assert.Equal(t, "daily_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestDailyMaintenanceJob_CriticalDiskSpace(t *testing.T) {
	stubDiskUsage(t, 100*1024*1024, nil)

	job := NewDailyMaintenanceJob(t.TempDir(), zerolog.Nop())
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GB free")
}

func TestDailyMaintenanceJob_DiskStatFailure(t *testing.T) {
	stubDiskUsage(t, 0, errors.New("no such filesystem"))

	job := NewDailyMaintenanceJob(t.TempDir(), zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestWeeklyMaintenanceJob_Run(t *testing.T) {
	ledger, cleanupLedger := testingpkg.NewTestDB(t, "ledger")
	defer cleanupLedger()
	cache, cleanupCache := testingpkg.NewTestDB(t, "cache")
	defer cleanupCache()

	job := NewWeeklyMaintenanceJob(zerolog.Nop(), ledger, cache)
	assert.Equal(t, "weekly_maintenance", job.Name())
	assert.NoError(t, job.Run())
}
