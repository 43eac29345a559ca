// Package cache persists computed P&L reports in the cache database.
// Payloads are msgpack blobs keyed by report key and ledger watermark.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/tunefolio/internal/modules/fiscal"
	"github.com/aristath/tunefolio/internal/modules/pnl"
)

// ReportRepository stores P&L reports in report_cache
type ReportRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

var _ pnl.ReportCache = (*ReportRepository)(nil)

// NewReportRepository creates a new report cache repository
func NewReportRepository(db *sql.DB, log zerolog.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: log.With().Str("repo", "report_cache").Logger(),
		now: time.Now,
	}
}

// wireReport is the encoded form of pnl.Report. Decimals travel as strings
// so cached figures stay exact.
type wireReport struct {
	Start            string                `msgpack:"start"`
	End              string                `msgpack:"end"`
	TotalRealisedPnL string                `msgpack:"total"`
	BySymbol         map[string]wireSymbol `msgpack:"by_symbol"`
	TotalSymbolsSold int                   `msgpack:"symbols"`
	TotalSells       int                   `msgpack:"sells"`
}

type wireSymbol struct {
	RealisedPnL  string `msgpack:"pnl"`
	QtySold      string `msgpack:"qty"`
	UnmatchedQty string `msgpack:"unmatched"`
}

// Get returns the cached report for key if it was computed at watermark.
// Any miss or decode failure reports false.
func (r *ReportRepository) Get(ctx context.Context, key string, watermark int64) (*pnl.Report, bool) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM report_cache WHERE cache_key = ? AND watermark = ?",
		key, watermark,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Failed to read cached report")
		return nil, false
	}

	report, err := decodeReport(payload)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cached report")
		return nil, false
	}
	return report, true
}

// Put stores report for key, replacing whatever was cached before
func (r *ReportRepository) Put(ctx context.Context, key string, watermark int64, report *pnl.Report) error {
	payload, err := encodeReport(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO report_cache (cache_key, watermark, payload, created_at) VALUES (?, ?, ?, ?)",
		key, watermark, payload, r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store report %s: %w", key, err)
	}
	return nil
}

// DeleteStale removes entries computed at a watermark other than current
// or created before cutoff. Returns the number of rows deleted.
func (r *ReportRepository) DeleteStale(ctx context.Context, current int64, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM report_cache WHERE watermark != ? OR created_at < ?",
		current, cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale reports: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of cached reports
func (r *ReportRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM report_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cached reports: %w", err)
	}
	return count, nil
}

func encodeReport(report *pnl.Report) ([]byte, error) {
	wire := wireReport{
		Start:            report.Window.Start,
		End:              report.Window.End,
		TotalRealisedPnL: report.TotalRealisedPnL.String(),
		BySymbol:         make(map[string]wireSymbol, len(report.BySymbol)),
		TotalSymbolsSold: report.TotalSymbolsSold,
		TotalSells:       report.TotalSells,
	}
	for symbol, s := range report.BySymbol {
		wire.BySymbol[symbol] = wireSymbol{
			RealisedPnL:  s.RealisedPnL.String(),
			QtySold:      s.QtySold.String(),
			UnmatchedQty: s.UnmatchedQty.String(),
		}
	}
	return msgpack.Marshal(&wire)
}

func decodeReport(payload []byte) (*pnl.Report, error) {
	var wire wireReport
	if err := msgpack.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}

	total, err := decimal.NewFromString(wire.TotalRealisedPnL)
	if err != nil {
		return nil, fmt.Errorf("invalid total: %w", err)
	}

	report := &pnl.Report{
		Window:           fiscal.Window{Start: wire.Start, End: wire.End},
		TotalRealisedPnL: total,
		BySymbol:         make(map[string]pnl.SymbolPnL, len(wire.BySymbol)),
		TotalSymbolsSold: wire.TotalSymbolsSold,
		TotalSells:       wire.TotalSells,
	}
	for symbol, s := range wire.BySymbol {
		var entry pnl.SymbolPnL
		if entry.RealisedPnL, err = decimal.NewFromString(s.RealisedPnL); err != nil {
			return nil, fmt.Errorf("invalid pnl for %s: %w", symbol, err)
		}
		if entry.QtySold, err = decimal.NewFromString(s.QtySold); err != nil {
			return nil, fmt.Errorf("invalid qty for %s: %w", symbol, err)
		}
		if entry.UnmatchedQty, err = decimal.NewFromString(s.UnmatchedQty); err != nil {
			return nil, fmt.Errorf("invalid unmatched qty for %s: %w", symbol, err)
		}
		report.BySymbol[symbol] = entry
	}
	return report, nil
}
