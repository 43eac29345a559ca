package trading

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tunefolio/internal/database"
	"github.com/aristath/tunefolio/internal/domain"
	"github.com/aristath/tunefolio/internal/modules/fiscal"
	"github.com/aristath/tunefolio/internal/modules/imports"
	"github.com/aristath/tunefolio/internal/modules/pnl"
	testingpkg "github.com/aristath/tunefolio/internal/testing"
)

// newMemoryRepo creates a repository over an in-memory SQLite ledger
func newMemoryRepo(t *testing.T) *TradeRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := database.Schema("ledger")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return NewTradeRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestIngest_InsertOrIgnore(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	trade := testingpkg.Buy("INFY", "2024-05-10", "10", "1450.50")

	inserted, err := repo.Ingest(ctx, trade)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same dedup key with different values is still a duplicate
	dup := trade
	dup.Quantity = testingpkg.D("99")
	dup.Source = domain.Source{Kind: domain.SourceAPISync}
	inserted, err = repo.Ingest(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	trades, err := repo.ListChronological(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(testingpkg.D("10")))
	assert.Equal(t, domain.SourceTradebook, trades[0].Source.Kind)
}

func TestIngest_DedupKeyComponents(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	base := testingpkg.Buy("INFY", "2024-05-10", "10", "100")
	_, err := repo.Ingest(ctx, base)
	require.NoError(t, err)

	otherExchange := testingpkg.On(base, "BSE")
	otherDate := base
	otherDate.TradeDate = "2024-05-11"
	otherSymbol := base
	otherSymbol.Symbol = "TCS"

	for _, rec := range []domain.TradeRecord{otherExchange, otherDate, otherSymbol} {
		inserted, err := repo.Ingest(ctx, rec)
		require.NoError(t, err)
		assert.True(t, inserted, "%s/%s/%s should be a new key", rec.Symbol, rec.TradeDate, rec.Exchange)
	}

	count, err := repo.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestIngest_RejectsInvalidRecord(t *testing.T) {
	repo := newMemoryRepo(t)

	trade := testingpkg.Buy("INFY", "2024-05-10", "0", "100")
	inserted, err := repo.Ingest(context.Background(), trade)
	assert.Error(t, err)
	assert.False(t, inserted)
	assert.Contains(t, err.Error(), "quantity must be positive")
}

func TestIngest_RoundTripsOptionalFields(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	trade := testingpkg.WithISIN(testingpkg.At(testingpkg.Sell("TCS", "2024-06-01", "2.5", "3900.125"), "2024-06-01T10:15:00"), "INE467B01029")
	trade.Series = domain.StringPtr("EQ")
	trade.OrderID = domain.StringPtr("ORD-1")

	_, err := repo.Ingest(ctx, trade)
	require.NoError(t, err)

	trades, err := repo.ListChronological(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	got := trades[0]
	assert.Equal(t, "TCS", got.Symbol)
	assert.Equal(t, domain.TradeTypeSell, got.TradeType)
	assert.True(t, got.Quantity.Equal(testingpkg.D("2.5")))
	assert.True(t, got.Price.Equal(testingpkg.D("3900.125")))
	require.NotNil(t, got.ISIN)
	assert.Equal(t, "INE467B01029", *got.ISIN)
	require.NotNil(t, got.ExecutionTimestamp)
	assert.Equal(t, "2024-06-01T10:15:00", *got.ExecutionTimestamp)
	assert.Equal(t, "EQ", domain.Deref(got.Series))
	assert.Equal(t, "ORD-1", domain.Deref(got.OrderID))
	assert.Nil(t, got.Auction)
	assert.Equal(t, "tradebook-fixture.csv", got.Source.File)
}

func TestListChronological_Ordering(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	records := []domain.TradeRecord{
		testingpkg.Sell("TCS", "2024-01-02", "1", "10"),
		testingpkg.At(testingpkg.Sell("INFY", "2024-01-05", "1", "10"), "2024-01-05T11:00:00"),
		testingpkg.At(testingpkg.Buy("INFY", "2024-01-05", "1", "10"), "2024-01-05T09:30:00"),
		testingpkg.Buy("INFY", "2024-01-05", "1", "10"), // no timestamp, sorts first within the day
		testingpkg.Buy("INFY", "2024-01-01", "1", "10"),
		testingpkg.Buy("TCS", "2024-01-01", "1", "10"),
	}
	for _, r := range records {
		_, err := repo.Ingest(ctx, r)
		require.NoError(t, err)
	}

	trades, err := repo.ListChronological(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 6)

	var got []string
	for _, tr := range trades {
		got = append(got, tr.TradeID)
	}
	want := []string{
		records[4].TradeID,
		records[3].TradeID,
		records[2].TradeID,
		records[1].TradeID,
		records[5].TradeID,
		records[0].TradeID,
	}
	assert.Equal(t, want, got)
}

func TestListChronological_IngestionOrderBreaksTies(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	first := testingpkg.Buy("INFY", "2024-02-01", "1", "10")
	second := testingpkg.Sell("INFY", "2024-02-01", "1", "12")
	third := testingpkg.Buy("INFY", "2024-02-01", "1", "11")
	for _, r := range []domain.TradeRecord{first, second, third} {
		_, err := repo.Ingest(ctx, r)
		require.NoError(t, err)
	}

	trades, err := repo.ListChronological(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, first.TradeID, trades[0].TradeID)
	assert.Equal(t, second.TradeID, trades[1].TradeID)
	assert.Equal(t, third.TradeID, trades[2].TradeID)
}

// Tradebook and feed timestamps use different separators; both are stored in
// one layout so a same-day feed trade sorts after an earlier tradebook trade.
func TestListChronological_MixedSourcesSameDay(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()
	importer := imports.NewImporter(repo, repo, imports.DateOrderISO, zerolog.New(nil).Level(zerolog.Disabled))

	body := "symbol,trade_date,exchange,segment,trade_type,quantity,price,trade_id,order_execution_time\n" +
		"INFY,2024-01-15,NSE,EQ,buy,10,100,T1,2024-01-15T10:00:00\n" +
		"INFY,2024-01-15,NSE,EQ,sell,10,150,T3,2024-01-15 12:30:00\n"
	_, err := importer.ImportBatch(ctx, []imports.BatchSource{
		{Name: "tradebook-2024.csv", Reader: strings.NewReader(body), DateOrder: imports.DateOrderISO},
	})
	require.NoError(t, err)

	inserted, err := importer.ImportFeed(ctx, []domain.FeedTrade{{
		TradingSymbol:   "INFY",
		Exchange:        "NSE",
		Product:         "CNC",
		TransactionType: "BUY",
		Quantity:        testingpkg.D("10"),
		AveragePrice:    testingpkg.D("200"),
		TradeID:         "T2",
		FillTimestamp:   "2024-01-15 11:00:00",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	trades, err := repo.ListChronological(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 3)

	assert.Equal(t, "T1", trades[0].TradeID)
	assert.Equal(t, "100", trades[0].Price.String())
	assert.Equal(t, "2024-01-15T10:00:00", domain.Deref(trades[0].ExecutionTimestamp))
	assert.Equal(t, "T2", trades[1].TradeID)
	assert.Equal(t, "2024-01-15T11:00:00", domain.Deref(trades[1].ExecutionTimestamp))
	assert.Equal(t, "T3", trades[2].TradeID)
	assert.Equal(t, "2024-01-15T12:30:00", domain.Deref(trades[2].ExecutionTimestamp))

	// The sell consumes the 10:00 lot at 100
	report := pnl.Compute(trades, fiscal.Window{}, zerolog.Nop())
	assert.Equal(t, "500", report.TotalRealisedPnL.String())
}

func TestListChronological_Empty(t *testing.T) {
	repo := newMemoryRepo(t)

	trades, err := repo.ListChronological(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSellDates(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	for _, r := range []domain.TradeRecord{
		testingpkg.Buy("INFY", "2023-01-10", "1", "10"),
		testingpkg.Sell("INFY", "2024-03-31", "1", "10"),
		testingpkg.Sell("TCS", "2023-04-01", "1", "10"),
		testingpkg.Sell("INFY", "2023-04-01", "1", "10"),
	} {
		_, err := repo.Ingest(ctx, r)
		require.NoError(t, err)
	}

	dates, err := repo.SellDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-04-01", "2024-03-31"}, dates)
}

func TestImportRuns(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	started := time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, repo.RecordRun(ctx, domain.ImportRun{
		RunID: "run-1", Source: "tradebook-2023.csv", Inserted: 10, Skipped: 1,
		StartedAt: started, FinishedAt: started.Add(time.Second),
	}))
	require.NoError(t, repo.RecordRun(ctx, domain.ImportRun{
		RunID: "run-2", Source: "api_sync", Inserted: 2,
		StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Second),
	}))

	runs, err := repo.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "api_sync", runs[0].Source)
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, 10, runs[1].Inserted)
	assert.Equal(t, 1, runs[1].Skipped)
	assert.True(t, runs[1].StartedAt.Equal(started))

	limited, err := repo.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// Concurrent importers writing the same records must leave exactly one copy
func TestIngest_ConcurrentWritersDeduplicate(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	repo := NewTradeRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
	ctx := context.Background()

	records := make([]domain.TradeRecord, 20)
	for i := range records {
		records[i] = testingpkg.Buy("INFY", "2024-05-10", "1", "100")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedTotal := 0
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, r := range records {
				inserted, err := repo.Ingest(ctx, r)
				assert.NoError(t, err)
				if inserted {
					mu.Lock()
					insertedTotal++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(records), insertedTotal)
	count, err := repo.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(records)), count)
}
