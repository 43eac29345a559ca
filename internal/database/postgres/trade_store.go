package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tunefolio/internal/domain"
)

// TradeStore implements domain.LedgerStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
	log  zerolog.Logger
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore       = (*TradeStore)(nil)
	_ domain.ImportRunRecorder = (*TradeStore)(nil)
)

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool, log zerolog.Logger) *TradeStore {
	return &TradeStore{
		pool: pool,
		log:  log.With().Str("repo", "trade_pg").Logger(),
	}
}

// Ingest inserts the record unless its dedup key already exists.
func (s *TradeStore) Ingest(ctx context.Context, record domain.TradeRecord) (bool, error) {
	if err := record.Validate(); err != nil {
		return false, fmt.Errorf("ingest trade: %w", err)
	}

	query := `
		INSERT INTO trades (
			symbol, isin, trade_date, exchange, segment, series, trade_type, auction,
			quantity, price, trade_id, order_id, order_execution_time, source, source_file
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9::numeric, $10::numeric, $11, $12, $13, $14, $15
		)
		ON CONFLICT (trade_id, symbol, trade_date, exchange) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		record.Symbol, record.ISIN, record.TradeDate, record.Exchange,
		domain.StringPtr(record.Segment), record.Series, string(record.TradeType), record.Auction,
		record.Quantity.String(), record.Price.String(), record.TradeID, record.OrderID,
		record.ExecutionTimestamp, string(record.Source.Kind), domain.StringPtr(record.Source.File),
	)
	if err != nil {
		return false, fmt.Errorf("ingest trade: %w", err)
	}

	if tag.RowsAffected() == 0 {
		s.log.Debug().
			Str("trade_id", record.TradeID).
			Str("symbol", record.Symbol).
			Msg("Trade already recorded, ignoring duplicate")
		return false, nil
	}
	return true, nil
}

// ListChronological returns every trade ordered for FIFO replay.
func (s *TradeStore) ListChronological(ctx context.Context) ([]domain.TradeRecord, error) {
	query := `
		SELECT symbol, isin, trade_date, exchange, segment, series, trade_type, auction,
			quantity::text, price::text, trade_id, order_id, order_execution_time, source, source_file
		FROM trades
		ORDER BY symbol ASC, trade_date ASC, order_execution_time ASC NULLS FIRST, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return trades, nil
}

// SellDates returns the distinct dates that carry at least one sell.
func (s *TradeStore) SellDates(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT trade_date FROM trades
		WHERE trade_type = 'sell'
		ORDER BY trade_date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sell dates: %w", err)
	}

	dates, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect sell dates: %w", err)
	}
	return dates, nil
}

// Watermark returns the number of stored trades.
func (s *TradeStore) Watermark(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM trades").Scan(&count); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

// RecordRun stores the audit entry of one imported source.
func (s *TradeStore) RecordRun(ctx context.Context, run domain.ImportRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_runs (run_id, source, inserted, skipped, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.RunID, run.Source, run.Inserted, run.Skipped, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest import runs, most recent first.
func (s *TradeStore) RecentRuns(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, source, inserted, skipped, started_at, finished_at
		FROM import_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ImportRun, 0)
	for rows.Next() {
		var run domain.ImportRun
		if err := rows.Scan(&run.RunID, &run.Source, &run.Inserted, &run.Skipped, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanTrade(rows pgx.Rows) (domain.TradeRecord, error) {
	var trade domain.TradeRecord
	var segment, sourceFile *string
	var tradeType, quantity, price, source string

	err := rows.Scan(
		&trade.Symbol, &trade.ISIN, &trade.TradeDate, &trade.Exchange, &segment, &trade.Series,
		&tradeType, &trade.Auction, &quantity, &price, &trade.TradeID, &trade.OrderID,
		&trade.ExecutionTimestamp, &source, &sourceFile,
	)
	if err != nil {
		return trade, fmt.Errorf("scan trade: %w", err)
	}

	if trade.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return trade, fmt.Errorf("parse quantity %q: %w", quantity, err)
	}
	if trade.Price, err = decimal.NewFromString(price); err != nil {
		return trade, fmt.Errorf("parse price %q: %w", price, err)
	}

	trade.TradeType = domain.TradeType(tradeType)
	trade.Segment = domain.Deref(segment)
	trade.Source = domain.Source{Kind: domain.SourceKind(source), File: domain.Deref(sourceFile)}
	return trade, nil
}
