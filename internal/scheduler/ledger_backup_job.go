package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LedgerBackupJob uploads a ledger snapshot to object storage
type LedgerBackupJob struct {
	backuper LedgerBackuper
	timeout  time.Duration
	log      zerolog.Logger
}

// NewLedgerBackupJob creates a new ledger backup job
func NewLedgerBackupJob(backuper LedgerBackuper, log zerolog.Logger) *LedgerBackupJob {
	return &LedgerBackupJob{
		backuper: backuper,
		timeout:  10 * time.Minute,
		log:      log.With().Str("job", "ledger_backup").Logger(),
	}
}

// Name returns the job name
func (j *LedgerBackupJob) Name() string {
	return "ledger_backup"
}

// Run executes the backup
func (j *LedgerBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.backuper.Backup(ctx); err != nil {
		return err
	}
	j.log.Info().Dur("duration", time.Since(start)).Msg("Ledger backup completed")
	return nil
}
