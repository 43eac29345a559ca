package testing

import (
	"context"
	"sort"
	"sync"

	"github.com/aristath/tunefolio/internal/clients/kite"
	"github.com/aristath/tunefolio/internal/domain"
)

// MemoryLedger is an in-memory domain.LedgerStore honouring the same
// insert-or-ignore and ordering contract as the SQL stores.
type MemoryLedger struct {
	mu      sync.Mutex
	records []domain.TradeRecord
	keys    map[domain.DedupKey]struct{}

	// Err, when set, is returned by every operation
	Err error
}

// NewMemoryLedger creates a ledger pre-populated with records (duplicates dropped)
func NewMemoryLedger(records ...domain.TradeRecord) *MemoryLedger {
	l := &MemoryLedger{keys: make(map[domain.DedupKey]struct{})}
	for _, r := range records {
		_, _ = l.Ingest(context.Background(), r)
	}
	return l
}

// Ingest implements domain.LedgerWriter
func (l *MemoryLedger) Ingest(_ context.Context, record domain.TradeRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return false, l.Err
	}
	if _, exists := l.keys[record.Key()]; exists {
		return false, nil
	}
	l.keys[record.Key()] = struct{}{}
	l.records = append(l.records, record)
	return true, nil
}

// ListChronological implements domain.LedgerReader
func (l *MemoryLedger) ListChronological(_ context.Context) ([]domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}
	out := make([]domain.TradeRecord, len(l.records))
	copy(out, l.records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.TradeDate != b.TradeDate {
			return a.TradeDate < b.TradeDate
		}
		// Absent timestamps sort first, as NULLs do in SQLite
		switch {
		case a.ExecutionTimestamp == nil && b.ExecutionTimestamp == nil:
			return false
		case a.ExecutionTimestamp == nil:
			return true
		case b.ExecutionTimestamp == nil:
			return false
		}
		return *a.ExecutionTimestamp < *b.ExecutionTimestamp
	})
	return out, nil
}

// SellDates implements domain.LedgerReader
func (l *MemoryLedger) SellDates(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}
	seen := make(map[string]struct{})
	var dates []string
	for _, r := range l.records {
		if !r.IsSell() {
			continue
		}
		if _, ok := seen[r.TradeDate]; !ok {
			seen[r.TradeDate] = struct{}{}
			dates = append(dates, r.TradeDate)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// Watermark implements domain.LedgerReader
func (l *MemoryLedger) Watermark(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return 0, l.Err
	}
	return int64(len(l.records)), nil
}

// Len returns the number of stored records
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// FakeFeed is a domain.TradeFeed returning canned trades
type FakeFeed struct {
	Records []domain.FeedTrade
	Err     error
	Calls   int
	// ValidToken, when set, makes Trades fail with kite.ErrTokenExpired
	// until Token equals it
	ValidToken string
	Token      string
}

// Trades implements domain.TradeFeed
func (f *FakeFeed) Trades(_ context.Context) ([]domain.FeedTrade, error) {
	f.Calls++
	if f.ValidToken != "" && f.Token != f.ValidToken {
		return nil, kite.ErrTokenExpired
	}
	return f.Records, f.Err
}

// SetAccessToken records the session token
func (f *FakeFeed) SetAccessToken(token string) {
	f.Token = token
}

// FakeHoldings is a domain.HoldingsProvider returning canned holdings
type FakeHoldings struct {
	Symbols []string
	Err     error
}

// Holdings implements domain.HoldingsProvider
func (f *FakeHoldings) Holdings(_ context.Context) ([]domain.BrokerHolding, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]domain.BrokerHolding, 0, len(f.Symbols))
	for _, s := range f.Symbols {
		out = append(out, domain.BrokerHolding{TradingSymbol: s, Exchange: "NSE"})
	}
	return out, nil
}
