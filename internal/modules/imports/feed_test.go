package imports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tunefolio/internal/domain"
	testingpkg "github.com/aristath/tunefolio/internal/testing"
)

func feedTrade(id, side, fill string) domain.FeedTrade {
	return domain.FeedTrade{
		TradingSymbol:   "INFY",
		Exchange:        "NSE",
		Product:         "CNC",
		TransactionType: side,
		Quantity:        testingpkg.D("3"),
		AveragePrice:    testingpkg.D("1500.25"),
		TradeID:         id,
		OrderID:         "O-" + id,
		FillTimestamp:   fill,
	}
}

func TestFromFeed_MapsFields(t *testing.T) {
	record, err := FromFeed(feedTrade("K1", "SELL", "2024-05-10 09:15:32"), "2024-05-11")
	require.NoError(t, err)

	assert.Equal(t, "INFY", record.Symbol)
	assert.Equal(t, "2024-05-10", record.TradeDate)
	assert.Equal(t, "NSE", record.Exchange)
	assert.Equal(t, "CNC", record.Segment)
	assert.Equal(t, domain.TradeTypeSell, record.TradeType)
	assert.Equal(t, "2024-05-10T09:15:32", domain.Deref(record.ExecutionTimestamp))
	assert.Equal(t, "O-K1", domain.Deref(record.OrderID))
	assert.Nil(t, record.ISIN)
	assert.Nil(t, record.Series)
	assert.Nil(t, record.Auction)
	assert.Equal(t, domain.Source{Kind: domain.SourceAPISync}, record.Source)
}

func TestFromFeed_EmptyFillUsesToday(t *testing.T) {
	record, err := FromFeed(feedTrade("K1", "buy", ""), "2024-05-11")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-11", record.TradeDate)
	assert.Nil(t, record.ExecutionTimestamp)
}

func TestFromFeed_RejectsMalformedFill(t *testing.T) {
	_, err := FromFeed(feedTrade("K1", "BUY", "10/05/2024 09:15"), "2024-05-11")
	assert.ErrorContains(t, err, "invalid fill timestamp")
}

func TestFromFeed_RejectsUnknownSide(t *testing.T) {
	_, err := FromFeed(feedTrade("K1", "SHORT", "2024-05-10 09:15:32"), "2024-05-11")
	assert.Error(t, err)
}

// A trade seen in a tradebook and again through the feed is stored once
func TestImportFeed_DeduplicatesAgainstTradebook(t *testing.T) {
	ledger := testingpkg.NewMemoryLedger()
	runs := &runRecorder{}
	importer := newTestImporter(ledger, runs)

	body := tradebookHeader + "INFY,,2024-05-10,NSE,EQ,EQ,buy,,3,1500.25,K1,,\n"
	_, err := importer.ImportBatch(context.Background(), []BatchSource{source("tb.csv", body, DateOrderISO)})
	require.NoError(t, err)

	inserted, err := importer.ImportFeed(context.Background(), []domain.FeedTrade{
		feedTrade("K1", "BUY", "2024-05-10 09:15:32"),
		feedTrade("K2", "SELL", "2024-05-10 11:00:00"),
		feedTrade("K3", "???", "2024-05-10 11:00:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 2, ledger.Len())

	last := runs.runs[len(runs.runs)-1]
	assert.Equal(t, "api_sync", last.Source)
	assert.Equal(t, 1, last.Inserted)
	assert.Equal(t, 1, last.Skipped)
}
