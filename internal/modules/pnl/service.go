package pnl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/domain"
	"github.com/aristath/tunefolio/internal/modules/fiscal"
)

// ReportCache memoises reports per window. A cached report is only valid
// for the ledger watermark it was computed at.
type ReportCache interface {
	Get(ctx context.Context, key string, watermark int64) (*Report, bool)
	Put(ctx context.Context, key string, watermark int64, report *Report) error
}

// Service computes realised P&L reports from the ledger
type Service struct {
	reader domain.LedgerReader
	cache  ReportCache // optional
	log    zerolog.Logger
}

// NewService creates a new P&L service. cache may be nil.
func NewService(reader domain.LedgerReader, cache ReportCache, log zerolog.Logger) *Service {
	return &Service{
		reader: reader,
		cache:  cache,
		log:    log.With().Str("service", "pnl").Logger(),
	}
}

// Compute returns the realised P&L for sells inside window.
// All trades are loaded regardless of the window, since a lot bought years
// earlier may be sold inside it.
func (s *Service) Compute(ctx context.Context, window fiscal.Window) (*Report, error) {
	key := cacheKey(window)

	var watermark int64
	if s.cache != nil {
		var err error
		watermark, err = s.reader.Watermark(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger watermark: %w", err)
		}
		if report, ok := s.cache.Get(ctx, key, watermark); ok {
			s.log.Debug().Str("key", key).Msg("Report cache hit")
			return report, nil
		}
	}

	trades, err := s.reader.ListChronological(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	report := Compute(trades, window, s.log)

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, watermark, report); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache report")
		}
	}

	return report, nil
}

// ComputeFY returns the realised P&L of the financial year named by label,
// or of the current financial year when label is empty
func (s *Service) ComputeFY(ctx context.Context, label string, now time.Time) (*Report, error) {
	window, err := fiscal.WindowFor(label, now)
	if err != nil {
		return nil, err
	}
	return s.Compute(ctx, window)
}

func cacheKey(window fiscal.Window) string {
	return "pnl:" + window.Start + ":" + window.End
}
