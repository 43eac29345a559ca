package testing

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/aristath/tunefolio/internal/domain"
)

var fixtureSeq atomic.Int64

// D parses a decimal literal, panicking on malformed test input
func D(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// Buy returns a tradebook buy record with a unique trade id
func Buy(symbol, date, quantity, price string) domain.TradeRecord {
	return newTrade(symbol, date, domain.TradeTypeBuy, quantity, price)
}

// Sell returns a tradebook sell record with a unique trade id
func Sell(symbol, date, quantity, price string) domain.TradeRecord {
	return newTrade(symbol, date, domain.TradeTypeSell, quantity, price)
}

func newTrade(symbol, date string, tradeType domain.TradeType, quantity, price string) domain.TradeRecord {
	return domain.TradeRecord{
		Symbol:    symbol,
		TradeDate: date,
		Exchange:  "NSE",
		Segment:   "EQ",
		TradeType: tradeType,
		Quantity:  D(quantity),
		Price:     D(price),
		TradeID:   fmt.Sprintf("T%06d", fixtureSeq.Add(1)),
		Source:    domain.Source{Kind: domain.SourceTradebook, File: "tradebook-fixture.csv"},
	}
}

// At sets the execution timestamp of a fixture record
func At(record domain.TradeRecord, timestamp string) domain.TradeRecord {
	record.ExecutionTimestamp = &timestamp
	return record
}

// On sets the exchange of a fixture record
func On(record domain.TradeRecord, exchange string) domain.TradeRecord {
	record.Exchange = exchange
	return record
}

// WithISIN sets the ISIN of a fixture record
func WithISIN(record domain.TradeRecord, isin string) domain.TradeRecord {
	record.ISIN = &isin
	return record
}
