package imports

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/clients/kite"
	"github.com/aristath/tunefolio/internal/domain"
)

// Sync statuses
const (
	SyncStatusOK      = "ok"
	SyncStatusSkipped = "skipped"
	SyncStatusError   = "error"
)

// SyncResult reports the outcome of one live feed sync
type SyncResult struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Fetched   int       `json:"fetched"`
	Inserted  int       `json:"inserted"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncService pulls the session's trades from the live feed into the ledger
type SyncService struct {
	feed     domain.TradeFeed
	importer *Importer
	log      zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last *SyncResult
}

// NewSyncService creates a new sync service
func NewSyncService(feed domain.TradeFeed, importer *Importer, log zerolog.Logger) *SyncService {
	return &SyncService{
		feed:     feed,
		importer: importer,
		log:      log.With().Str("service", "trade_sync").Logger(),
		now:      time.Now,
	}
}

// Sync fetches and ingests the live feed. It never returns an error:
// failures are reported in the result so scheduled runs keep going.
func (s *SyncService) Sync(ctx context.Context) SyncResult {
	result := s.sync(ctx)

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()

	return result
}

// LastResult returns the most recent sync result, nil before the first run
func (s *SyncService) LastResult() *SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	result := *s.last
	return &result
}

func (s *SyncService) sync(ctx context.Context) SyncResult {
	trades, err := s.feed.Trades(ctx)
	if err != nil {
		switch {
		case errors.Is(err, kite.ErrNoCredentials):
			s.log.Info().Msg("Trade sync skipped: no credentials")
			return s.result(SyncStatusSkipped, "no_token", 0, 0)
		case errors.Is(err, kite.ErrTokenExpired):
			s.log.Info().Msg("Trade sync skipped: token expired")
			return s.result(SyncStatusSkipped, "token_expired", 0, 0)
		}
		s.log.Error().Err(err).Msg("Trade sync failed to fetch trades")
		return s.result(SyncStatusError, err.Error(), 0, 0)
	}

	if len(trades) == 0 {
		s.log.Info().Msg("Trade sync: no trades returned")
		return s.result(SyncStatusOK, "", 0, 0)
	}

	inserted, err := s.importer.ImportFeed(ctx, trades)
	if err != nil {
		s.log.Error().Err(err).Msg("Trade sync failed to ingest trades")
		return s.result(SyncStatusError, err.Error(), len(trades), inserted)
	}

	s.log.Info().
		Int("fetched", len(trades)).
		Int("inserted", inserted).
		Msg("Trade sync complete")
	return s.result(SyncStatusOK, "", len(trades), inserted)
}

func (s *SyncService) result(status, reason string, fetched, inserted int) SyncResult {
	return SyncResult{
		Status:    status,
		Reason:    reason,
		Fetched:   fetched,
		Inserted:  inserted,
		Timestamp: s.now(),
	}
}
