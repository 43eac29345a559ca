package imports

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/tunefolio/internal/domain"
)

// FromFeed maps a live feed trade onto a ledger record.
// The feed carries no ISIN, series or auction flag.
func FromFeed(t domain.FeedTrade, today string) (domain.TradeRecord, error) {
	fill, ok := NormalizeTimestamp(t.FillTimestamp)
	if !ok {
		return domain.TradeRecord{}, fmt.Errorf("invalid fill timestamp %q for trade %s", t.FillTimestamp, t.TradeID)
	}
	tradeDate := today
	if fill != "" {
		tradeDate = fill[:len(isoLayout)]
	}

	record := domain.TradeRecord{
		Symbol:             t.TradingSymbol,
		TradeDate:          tradeDate,
		Exchange:           t.Exchange,
		Segment:            t.Product,
		TradeType:          domain.TradeType(strings.ToLower(strings.TrimSpace(t.TransactionType))),
		Quantity:           t.Quantity,
		Price:              t.AveragePrice,
		TradeID:            t.TradeID,
		OrderID:            domain.StringPtr(t.OrderID),
		ExecutionTimestamp: domain.StringPtr(fill),
		Source:             domain.Source{Kind: domain.SourceAPISync},
	}

	if err := record.Validate(); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("invalid feed trade %s: %w", t.TradeID, err)
	}
	return record, nil
}

// ImportFeed ingests live feed trades and returns how many were new.
// Trades that cannot be mapped are skipped and logged.
func (i *Importer) ImportFeed(ctx context.Context, trades []domain.FeedTrade) (int, error) {
	started := i.now()
	today := started.Format(isoLayout)
	var stats sourceStats

	for _, t := range trades {
		record, err := FromFeed(t, today)
		if err != nil {
			stats.skipped++
			i.log.Warn().Err(err).Str("symbol", t.TradingSymbol).Msg("Skipping feed trade")
			continue
		}

		inserted, err := i.ledger.Ingest(ctx, record)
		if err != nil {
			return stats.inserted, fmt.Errorf("failed to ingest feed trade: %w", err)
		}
		if inserted {
			stats.inserted++
		}
	}

	i.recordRun(ctx, string(domain.SourceAPISync), stats, started)
	return stats.inserted, nil
}
