package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/modules/imports"
)

// TradeSyncJob ingests the trades executed at the broker since the last run
type TradeSyncJob struct {
	syncer  TradeSyncer
	timeout time.Duration
	log     zerolog.Logger
}

// NewTradeSyncJob creates a new trade sync job
func NewTradeSyncJob(syncer TradeSyncer, log zerolog.Logger) *TradeSyncJob {
	return &TradeSyncJob{
		syncer:  syncer,
		timeout: 2 * time.Minute,
		log:     log.With().Str("job", "trade_sync").Logger(),
	}
}

// Name returns the job name
func (j *TradeSyncJob) Name() string {
	return "trade_sync"
}

// Run executes one sync. Skipped syncs (no or expired token) are not failures.
func (j *TradeSyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result := j.syncer.Sync(ctx)
	j.log.Info().
		Str("status", result.Status).
		Str("reason", result.Reason).
		Int("fetched", result.Fetched).
		Int("inserted", result.Inserted).
		Msg("Scheduled trade sync finished")

	if result.Status == imports.SyncStatusError {
		return fmt.Errorf("trade sync failed: %s", result.Reason)
	}
	return nil
}
