package domain

import "github.com/shopspring/decimal"

// Broker-agnostic shapes of the live brokerage feed.
// Field names follow the brokerage JSON so payloads decode directly.

// FeedTrade is one executed trade object returned by the live feed
type FeedTrade struct {
	TradingSymbol   string          `json:"tradingsymbol"`
	Exchange        string          `json:"exchange"`
	Product         string          `json:"product"`          // CNC / MIS / NRML, stored as segment
	TransactionType string          `json:"transaction_type"` // BUY / SELL
	Quantity        decimal.Decimal `json:"quantity"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	TradeID         string          `json:"trade_id"`
	OrderID         string          `json:"order_id"`
	FillTimestamp   string          `json:"fill_timestamp"` // "2006-01-02 15:04:05"
}

// BrokerHolding is one currently held position; only the symbol matters to the ledger
type BrokerHolding struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	ISIN          string          `json:"isin"`
	Quantity      decimal.Decimal `json:"quantity"`
}
