package domain

import "context"

// LedgerWriter appends trade records.
// Ingest is an insert-or-ignore: a record whose dedup key already exists is
// silently dropped and reported as not inserted. It never updates history.
type LedgerWriter interface {
	Ingest(ctx context.Context, record TradeRecord) (bool, error)
}

// LedgerReader exposes the read queries used by the P&L engine, the
// reconciler and the FY calculator.
type LedgerReader interface {
	// ListChronological returns every trade ordered by symbol, trade_date,
	// execution timestamp (absent timestamps first) and ingestion order.
	ListChronological(ctx context.Context) ([]TradeRecord, error)

	// SellDates returns the distinct trade dates of sell records, ascending
	SellDates(ctx context.Context) ([]string, error)

	// Watermark returns a value that changes whenever a record is appended
	Watermark(ctx context.Context) (int64, error)
}

// LedgerStore is the single owned ledger behind every ingestion path
type LedgerStore interface {
	LedgerReader
	LedgerWriter
}

// TradeFeed fetches the executed trades of the current session from the broker
type TradeFeed interface {
	Trades(ctx context.Context) ([]FeedTrade, error)
}

// HoldingsProvider returns the positions currently held at the broker
type HoldingsProvider interface {
	Holdings(ctx context.Context) ([]BrokerHolding, error)
}

// ImportRunRecorder persists the audit trail of import runs
type ImportRunRecorder interface {
	RecordRun(ctx context.Context, run ImportRun) error
	RecentRuns(ctx context.Context, limit int) ([]ImportRun, error)
}
