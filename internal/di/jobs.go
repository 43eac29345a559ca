package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/cache"
	"github.com/aristath/tunefolio/internal/config"
	"github.com/aristath/tunefolio/internal/reliability"
	"github.com/aristath/tunefolio/internal/scheduler"
)

// Maintenance schedules (seconds field first)
const (
	cacheCleanupSchedule      = "0 15 3 * * *"
	walCheckpointSchedule     = "0 0 * * * *"
	dailyMaintenanceSchedule  = "0 30 2 * * *"
	weeklyMaintenanceSchedule = "0 0 4 * * SUN"
)

// RegisterJobs creates the scheduler and registers every background job.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sync timezone %q: %w", cfg.Sync.Timezone, err)
	}
	sched := scheduler.New(loc, log)
	container.Scheduler = sched

	instances := &JobInstances{}

	// Live trade sync
	instances.TradeSync = scheduler.NewTradeSyncJob(container.SyncService, log)
	for _, spec := range cfg.Sync.Schedules {
		if err := sched.AddJob(spec, instances.TradeSync); err != nil {
			return nil, err
		}
	}

	// Off-site ledger backup
	if container.BackupService != nil {
		instances.LedgerBackup = scheduler.NewLedgerBackupJob(container.BackupService, log)
		if err := sched.AddJob(cfg.Backup.Schedule, instances.LedgerBackup); err != nil {
			return nil, err
		}
	}

	// Report cache cleanup
	instances.CacheCleanup = cache.NewCleanupJob(container.ReportCache, container.Ledger, cache.DefaultMaxAge, log)
	if err := sched.AddJob(cacheCleanupSchedule, instances.CacheCleanup); err != nil {
		return nil, err
	}

	// SQLite upkeep
	dbs := container.SQLiteDatabases()
	instances.WALCheckpoints = scheduler.NewCheckWALCheckpointsJob(log, dbs...)
	if err := sched.AddJob(walCheckpointSchedule, instances.WALCheckpoints); err != nil {
		return nil, err
	}

	instances.DailyMaintenance = reliability.NewDailyMaintenanceJob(cfg.DataDir, log, dbs...)
	if err := sched.AddJob(dailyMaintenanceSchedule, instances.DailyMaintenance); err != nil {
		return nil, err
	}

	instances.WeeklyMaintenance = reliability.NewWeeklyMaintenanceJob(log, dbs...)
	if err := sched.AddJob(weeklyMaintenanceSchedule, instances.WeeklyMaintenance); err != nil {
		return nil, err
	}

	log.Info().Int("jobs", len(sched.Status().Jobs)).Msg("Background jobs registered")

	return instances, nil
}
