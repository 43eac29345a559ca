// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/tunefolio/internal/cache"
	"github.com/aristath/tunefolio/internal/clients/kite"
	"github.com/aristath/tunefolio/internal/database"
	"github.com/aristath/tunefolio/internal/database/postgres"
	"github.com/aristath/tunefolio/internal/domain"
	"github.com/aristath/tunefolio/internal/modules/imports"
	"github.com/aristath/tunefolio/internal/modules/pnl"
	"github.com/aristath/tunefolio/internal/modules/reconciliation"
	"github.com/aristath/tunefolio/internal/reliability"
	"github.com/aristath/tunefolio/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and shared by the HTTP server and the CLI.
type Container struct {
	// Databases. Exactly one of LedgerDB and LedgerPool is set.
	LedgerDB   *database.DB   // SQLite ledger (append-only, ProfileLedger)
	LedgerPool *postgres.Pool // Postgres ledger when LEDGER_DATABASE_URL is set
	CacheDB    *database.DB   // Memoised reports

	// Ledger store behind every ingestion path and reader
	Ledger     domain.LedgerStore
	ImportRuns domain.ImportRunRecorder

	// Clients
	KiteClient *kite.Client

	// Services
	ReportCache   *cache.ReportRepository
	Importer      *imports.Importer
	SyncService   *imports.SyncService
	PnLService    *pnl.Service
	Reconciler    *reconciliation.Reconciler
	BackupService *reliability.LedgerBackupService // nil unless a bucket is configured

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs for manual triggering
type JobInstances struct {
	TradeSync         *scheduler.TradeSyncJob
	LedgerBackup      *scheduler.LedgerBackupJob // nil when backups are disabled
	CacheCleanup      *cache.CleanupJob
	WALCheckpoints    *scheduler.CheckWALCheckpointsJob
	DailyMaintenance  *reliability.DailyMaintenanceJob
	WeeklyMaintenance *reliability.WeeklyMaintenanceJob
}

// SQLiteDatabases returns the open SQLite databases
func (c *Container) SQLiteDatabases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.LedgerDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops the scheduler and closes every database
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	for _, db := range c.SQLiteDatabases() {
		_ = db.Close()
	}
	if c.LedgerPool != nil {
		c.LedgerPool.Close()
	}
}

// All returns the registered jobs, skipping disabled ones
func (j *JobInstances) All() []scheduler.Job {
	var jobs []scheduler.Job
	if j.TradeSync != nil {
		jobs = append(jobs, j.TradeSync)
	}
	if j.LedgerBackup != nil {
		jobs = append(jobs, j.LedgerBackup)
	}
	if j.CacheCleanup != nil {
		jobs = append(jobs, j.CacheCleanup)
	}
	if j.WALCheckpoints != nil {
		jobs = append(jobs, j.WALCheckpoints)
	}
	if j.DailyMaintenance != nil {
		jobs = append(jobs, j.DailyMaintenance)
	}
	if j.WeeklyMaintenance != nil {
		jobs = append(jobs, j.WeeklyMaintenance)
	}
	return jobs
}
