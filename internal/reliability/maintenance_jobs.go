package reliability

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/tunefolio/internal/database"
)

// Disk thresholds in bytes
const (
	criticalFreeBytes = 500 * 1024 * 1024
	lowFreeBytes      = 5 * 1024 * 1024 * 1024
)

// diskUsage is swapped in tests
var diskUsage = func(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// DailyMaintenanceJob checks integrity, checkpoints the WAL and watches free disk space
type DailyMaintenanceJob struct {
	databases []*database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(dataDir string, log zerolog.Logger, databases ...*database.DB) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			return fmt.Errorf("health check of %s: %w", db.Name(), err)
		}
		// Not critical
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("Daily maintenance completed")
	return nil
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

func (j *DailyMaintenanceJob) checkDiskSpace() error {
	free, err := diskUsage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	freeGB := float64(free) / 1e9
	switch {
	case free < criticalFreeBytes:
		j.log.Error().Float64("available_gb", freeGB).Msg("Insufficient disk space for the ledger")
		return fmt.Errorf("only %.2f GB free in %s", freeGB, j.dataDir)
	case free < lowFreeBytes:
		j.log.Warn().Float64("available_gb", freeGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", freeGB).Msg("Disk space check")
	}
	return nil
}

// WeeklyMaintenanceJob vacuums the disposable databases. The ledger is append-only and skipped.
type WeeklyMaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job
func NewWeeklyMaintenanceJob(log zerolog.Logger, databases ...*database.DB) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Run executes the weekly maintenance job
func (j *WeeklyMaintenanceJob) Run() error {
	for _, db := range j.databases {
		if db.Profile() == database.ProfileLedger {
			j.log.Debug().Str("database", db.Name()).Msg("Skipping VACUUM for append-only ledger")
			continue
		}
		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
		}
	}
	return nil
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

func (j *WeeklyMaintenanceJob) vacuumDatabase(db *database.DB) error {
	var sizeBefore int64
	if info, err := os.Stat(db.Path()); err == nil {
		sizeBefore = info.Size()
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	var sizeAfter int64
	if info, err := os.Stat(db.Path()); err == nil {
		sizeAfter = info.Size()
	}

	j.log.Info().
		Str("database", db.Name()).
		Int64("size_before", sizeBefore).
		Int64("size_after", sizeAfter).
		Msg("VACUUM completed")
	return nil
}
