package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/domain"
)

// DefaultMaxAge bounds how long a report stays cached even if the ledger is unchanged
const DefaultMaxAge = 7 * 24 * time.Hour

// CleanupJob drops cached reports that can no longer be served.
// It should be scheduled to run daily.
type CleanupJob struct {
	repo   *ReportRepository
	ledger domain.LedgerReader
	maxAge time.Duration
	log    zerolog.Logger
}

// NewCleanupJob creates a new report cache cleanup job
func NewCleanupJob(repo *ReportRepository, ledger domain.LedgerReader, maxAge time.Duration, log zerolog.Logger) *CleanupJob {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &CleanupJob{
		repo:   repo,
		ledger: ledger,
		maxAge: maxAge,
		log:    log.With().Str("job", "report_cache_cleanup").Logger(),
	}
}

// Run removes reports computed at an older watermark or past maxAge
func (j *CleanupJob) Run() error {
	ctx := context.Background()

	watermark, err := j.ledger.Watermark(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to read ledger watermark")
		return err
	}

	deleted, err := j.repo.DeleteStale(ctx, watermark, j.repo.now().Add(-j.maxAge))
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete stale reports")
		return err
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Cleaned up stale cached reports")
	}
	return nil
}

// Name returns the job name for scheduling and logging
func (j *CleanupJob) Name() string {
	return "report_cache_cleanup"
}
