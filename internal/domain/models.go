// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the direction of an executed trade
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// IsValid checks if the trade type is one of the two known values
func (t TradeType) IsValid() bool {
	return t == TradeTypeBuy || t == TradeTypeSell
}

// ParseTradeType normalises a case-insensitive trade type ("BUY", " sell ")
func ParseTradeType(value string) (TradeType, error) {
	switch TradeType(strings.ToLower(strings.TrimSpace(value))) {
	case TradeTypeBuy:
		return TradeTypeBuy, nil
	case TradeTypeSell:
		return TradeTypeSell, nil
	default:
		return "", fmt.Errorf("invalid trade type: %q", value)
	}
}

// SourceKind identifies the ingestion path that produced a trade record.
// It is kept for audit and traceability only; matching never looks at it.
type SourceKind string

const (
	// SourceTradebook marks rows imported from a tradebook export file
	SourceTradebook SourceKind = "tradebook"
	// SourceAPISync marks records fetched from the live brokerage feed
	SourceAPISync SourceKind = "api_sync"
)

// IsValid checks if the source kind is one of the known ingestion paths
func (k SourceKind) IsValid() bool {
	return k == SourceTradebook || k == SourceAPISync
}

// Source tags a record with its ingestion path and, for files, the file name
type Source struct {
	Kind SourceKind `json:"kind"`
	File string     `json:"file,omitempty"`
}

// Identifier is the key used in per-source import summaries
func (s Source) Identifier() string {
	if s.File != "" {
		return s.File
	}
	return string(s.Kind)
}

// TradeRecord is one executed trade in the ledger.
// Records are append-only: created by the importer, never updated or deleted.
type TradeRecord struct {
	Symbol             string          `json:"symbol"`
	ISIN               *string         `json:"isin,omitempty"`
	TradeDate          string          `json:"trade_date"` // YYYY-MM-DD once normalised
	Exchange           string          `json:"exchange"`
	Segment            string          `json:"segment"`
	Series             *string         `json:"series,omitempty"`
	TradeType          TradeType       `json:"trade_type"`
	Auction            *string         `json:"auction,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	TradeID            string          `json:"trade_id"`
	OrderID            *string         `json:"order_id,omitempty"`
	ExecutionTimestamp *string         `json:"execution_timestamp,omitempty"`
	Source             Source          `json:"source"`
}

// DedupKey uniquely identifies a trade across every ingestion path
type DedupKey struct {
	TradeID   string
	Symbol    string
	TradeDate string
	Exchange  string
}

// Key returns the record's dedup key
func (t TradeRecord) Key() DedupKey {
	return DedupKey{
		TradeID:   t.TradeID,
		Symbol:    t.Symbol,
		TradeDate: t.TradeDate,
		Exchange:  t.Exchange,
	}
}

// IsBuy returns true if this is a buy trade
func (t TradeRecord) IsBuy() bool { return t.TradeType == TradeTypeBuy }

// IsSell returns true if this is a sell trade
func (t TradeRecord) IsSell() bool { return t.TradeType == TradeTypeSell }

// Value returns quantity * price
func (t TradeRecord) Value() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Validate checks the record invariants and trims the identifying fields
func (t *TradeRecord) Validate() error {
	t.Symbol = strings.TrimSpace(t.Symbol)
	t.TradeID = strings.TrimSpace(t.TradeID)
	t.Exchange = strings.TrimSpace(t.Exchange)
	t.TradeDate = strings.TrimSpace(t.TradeDate)

	if t.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if t.TradeID == "" {
		return fmt.Errorf("trade_id cannot be empty")
	}
	if t.TradeDate == "" {
		return fmt.Errorf("trade_date cannot be empty")
	}
	if t.Exchange == "" {
		return fmt.Errorf("exchange cannot be empty")
	}
	if !t.TradeType.IsValid() {
		return fmt.Errorf("invalid trade type: %q", t.TradeType)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive")
	}
	if t.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative")
	}
	if !t.Source.Kind.IsValid() {
		return fmt.Errorf("invalid source kind: %q", t.Source.Kind)
	}

	return nil
}

// StringPtr returns nil for blank strings, the trimmed value otherwise.
// Nullable ledger columns store NULL rather than empty text.
func StringPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// Deref returns the pointed-to string or "" for nil
func Deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// ImportRun is the audit entry written for every imported source
type ImportRun struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
