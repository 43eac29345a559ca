// Package trading holds the SQLite ledger store and the trades HTTP handlers.
package trading

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tunefolio/internal/domain"
)

// TradeRepository is the SQLite implementation of the ledger store.
// Uniqueness of (trade_id, symbol, trade_date, exchange) is enforced by the
// schema, so concurrent writers never need an in-process lock.
type TradeRepository struct {
	ledgerDB *sql.DB // ledger.db - trades and import_runs tables
	log      zerolog.Logger
	now      func() time.Time
}

// tradesColumns is the list of columns read back from the trades table.
// Column order must match scanTrade().
const tradesColumns = `symbol, isin, trade_date, exchange, segment, series, trade_type, auction,
	quantity, price, trade_id, order_id, order_execution_time, source, source_file`

var (
	_ domain.LedgerStore       = (*TradeRepository)(nil)
	_ domain.ImportRunRecorder = (*TradeRepository)(nil)
)

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
		now:      time.Now,
	}
}

// Ingest inserts the record unless its dedup key already exists.
// Returns false (and no error) for duplicates.
func (r *TradeRepository) Ingest(ctx context.Context, record domain.TradeRecord) (bool, error) {
	if err := record.Validate(); err != nil {
		return false, fmt.Errorf("failed to ingest trade: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO trades
		(symbol, isin, trade_date, exchange, segment, series, trade_type, auction,
		 quantity, price, trade_id, order_id, order_execution_time, source, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.ledgerDB.ExecContext(ctx, query,
		record.Symbol,
		nullString(record.ISIN),
		record.TradeDate,
		record.Exchange,
		nullString(domain.StringPtr(record.Segment)),
		nullString(record.Series),
		string(record.TradeType),
		nullString(record.Auction),
		record.Quantity.String(),
		record.Price.String(),
		record.TradeID,
		nullString(record.OrderID),
		nullString(record.ExecutionTimestamp),
		string(record.Source.Kind),
		nullString(domain.StringPtr(record.Source.File)),
		r.now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to ingest trade: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		r.log.Debug().
			Str("trade_id", record.TradeID).
			Str("symbol", record.Symbol).
			Msg("Trade already recorded, ignoring duplicate")
		return false, nil
	}

	return true, nil
}

// ListChronological returns every trade ordered for FIFO replay.
// NULL execution times sort first in SQLite; id preserves ingestion order.
func (r *TradeRepository) ListChronological(ctx context.Context) ([]domain.TradeRecord, error) {
	query := `
		SELECT ` + tradesColumns + ` FROM trades
		ORDER BY symbol ASC, trade_date ASC, order_execution_time ASC, id ASC
	`

	rows, err := r.ledgerDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// SellDates returns the distinct dates that carry at least one sell
func (r *TradeRepository) SellDates(ctx context.Context) ([]string, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT DISTINCT trade_date FROM trades
		WHERE trade_type = 'sell'
		ORDER BY trade_date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sell dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan sell date: %w", err)
		}
		dates = append(dates, date)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sell dates: %w", err)
	}

	return dates, nil
}

// Watermark returns the number of stored trades; the ledger only grows
func (r *TradeRepository) Watermark(ctx context.Context) (int64, error) {
	var count int64
	if err := r.ledgerDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// RecordRun stores the audit entry of one imported source
func (r *TradeRepository) RecordRun(ctx context.Context, run domain.ImportRun) error {
	_, err := r.ledgerDB.ExecContext(ctx, `
		INSERT INTO import_runs (run_id, source, inserted, skipped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Source, run.Inserted, run.Skipped, run.StartedAt.Unix(), run.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest import runs, most recent first
func (r *TradeRepository) RecentRuns(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT run_id, source, inserted, skipped, started_at, finished_at
		FROM import_runs
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get import runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ImportRun, 0)
	for rows.Next() {
		var run domain.ImportRun
		var startedAt, finishedAt int64
		if err := rows.Scan(&run.RunID, &run.Source, &run.Inserted, &run.Skipped, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		run.FinishedAt = time.Unix(finishedAt, 0).UTC()
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanTrade(rows *sql.Rows) (domain.TradeRecord, error) {
	var trade domain.TradeRecord
	var isin, segment, series, auction, orderID, execTime, sourceFile sql.NullString
	var tradeType, quantity, price, source string

	err := rows.Scan(
		&trade.Symbol, &isin, &trade.TradeDate, &trade.Exchange, &segment, &series, &tradeType, &auction,
		&quantity, &price, &trade.TradeID, &orderID, &execTime, &source, &sourceFile,
	)
	if err != nil {
		return trade, err
	}

	if trade.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return trade, fmt.Errorf("invalid stored quantity %q: %w", quantity, err)
	}
	if trade.Price, err = decimal.NewFromString(price); err != nil {
		return trade, fmt.Errorf("invalid stored price %q: %w", price, err)
	}

	trade.TradeType = domain.TradeType(tradeType)
	trade.ISIN = stringPtr(isin)
	trade.Segment = segment.String
	trade.Series = stringPtr(series)
	trade.Auction = stringPtr(auction)
	trade.OrderID = stringPtr(orderID)
	trade.ExecutionTimestamp = stringPtr(execTime)
	trade.Source = domain.Source{Kind: domain.SourceKind(source), File: sourceFile.String}

	return trade, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
