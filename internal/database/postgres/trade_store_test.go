package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tunefolio/internal/domain"
	"github.com/aristath/tunefolio/internal/modules/fiscal"
	"github.com/aristath/tunefolio/internal/modules/pnl"
	testingpkg "github.com/aristath/tunefolio/internal/testing"
)

func TestTradeStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool, zerolog.Nop())
	ctx := context.Background()

	t.Run("insert or ignore", func(t *testing.T) {
		trade := testingpkg.WithISIN(testingpkg.Buy("INFY", "2024-01-01", "10", "100.50"), "INE009A01021")

		inserted, err := store.Ingest(ctx, trade)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = store.Ingest(ctx, trade)
		require.NoError(t, err)
		assert.False(t, inserted)

		count, err := store.Watermark(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		_, err := store.Ingest(ctx, testingpkg.Buy("INFY", "2024-01-01", "-1", "100"))
		assert.Error(t, err)
	})

	t.Run("chronological order with null timestamps first", func(t *testing.T) {
		later := testingpkg.At(testingpkg.Buy("INFY", "2024-02-01", "10", "120"), "2024-02-01T14:00:00")
		earlier := testingpkg.At(testingpkg.Sell("INFY", "2024-02-01", "5", "130"), "2024-02-01T10:00:00")
		untimed := testingpkg.Buy("INFY", "2024-02-01", "1", "125")
		for _, r := range []domain.TradeRecord{later, earlier, untimed} {
			_, err := store.Ingest(ctx, r)
			require.NoError(t, err)
		}

		trades, err := store.ListChronological(ctx)
		require.NoError(t, err)
		require.Len(t, trades, 4)
		assert.Equal(t, "2024-01-01", trades[0].TradeDate)
		assert.Equal(t, untimed.TradeID, trades[1].TradeID)
		assert.Equal(t, earlier.TradeID, trades[2].TradeID)
		assert.Equal(t, later.TradeID, trades[3].TradeID)

		assert.True(t, trades[0].Price.Equal(testingpkg.D("100.50")))
		assert.Equal(t, "INE009A01021", domain.Deref(trades[0].ISIN))
		assert.Equal(t, domain.SourceTradebook, trades[0].Source.Kind)
	})

	t.Run("sell dates", func(t *testing.T) {
		dates, err := store.SellDates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-02-01"}, dates)
	})

	t.Run("engine over postgres", func(t *testing.T) {
		report, err := pnl.NewService(store, nil, zerolog.Nop()).Compute(ctx, fiscal.Window{})
		require.NoError(t, err)
		// 5 sold at 130 against the first lot bought at 100.50
		assert.True(t, report.TotalRealisedPnL.Equal(testingpkg.D("147.5")))
	})

	t.Run("import runs", func(t *testing.T) {
		started := time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)
		require.NoError(t, store.RecordRun(ctx, domain.ImportRun{
			RunID: uuid.NewString(), Source: "tradebook-2024.csv", Inserted: 4,
			StartedAt: started, FinishedAt: started.Add(time.Second),
		}))

		runs, err := store.RecentRuns(ctx, 5)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "tradebook-2024.csv", runs[0].Source)
		assert.Equal(t, 4, runs[0].Inserted)
		assert.True(t, runs[0].StartedAt.Equal(started))
	})
}
