// Package reconciliation finds positions that were bought and fully sold again.
package reconciliation

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tunefolio/internal/domain"
)

// balanceTolerance is the largest buy/sell quantity gap still treated as fully exited
var balanceTolerance = decimal.RequireFromString("0.01")

// ExitedPosition summarises a symbol whose buys are fully matched by sells
type ExitedPosition struct {
	Symbol         string          `json:"symbol"`
	Exchange       string          `json:"exchange"`
	ISIN           *string         `json:"isin"`
	AvgBuyPrice    decimal.Decimal `json:"avg_buy_price"`
	AvgSellPrice   decimal.Decimal `json:"avg_sell_price"`
	TotalQtyTraded decimal.Decimal `json:"total_qty_traded"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	TotalProceeds  decimal.Decimal `json:"total_proceeds"`
	TotalPnL       decimal.Decimal `json:"total_pnl"` // proceeds minus invested, not FIFO
	FirstBuyDate   string          `json:"first_buy_date"`
	LastSellDate   string          `json:"last_sell_date"`
}

// Reconciler derives exited positions from the ledger
type Reconciler struct {
	reader   domain.LedgerReader
	holdings domain.HoldingsProvider // optional
	log      zerolog.Logger
}

// NewReconciler creates a new reconciler. holdings may be nil, in which case
// callers must always supply the current symbols.
func NewReconciler(reader domain.LedgerReader, holdings domain.HoldingsProvider, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		reader:   reader,
		holdings: holdings,
		log:      log.With().Str("service", "reconciliation").Logger(),
	}
}

// Reconcile returns the fully exited positions whose symbol is not in currentSymbols
func (r *Reconciler) Reconcile(ctx context.Context, currentSymbols []string) ([]ExitedPosition, error) {
	trades, err := r.reader.ListChronological(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	held := make(map[string]struct{}, len(currentSymbols))
	for _, s := range currentSymbols {
		held[s] = struct{}{}
	}

	return exitedPositions(trades, held), nil
}

// ReconcileWithHoldings looks up the current symbols at the broker first
func (r *Reconciler) ReconcileWithHoldings(ctx context.Context) ([]ExitedPosition, error) {
	if r.holdings == nil {
		return nil, fmt.Errorf("no holdings provider configured")
	}
	holdings, err := r.holdings.Holdings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current holdings: %w", err)
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.TradingSymbol)
	}
	r.log.Debug().Int("held", len(symbols)).Msg("Reconciling against broker holdings")

	return r.Reconcile(ctx, symbols)
}

// symbolTotals accumulates one symbol's history
type symbolTotals struct {
	symbol       string
	exchange     string
	isin         *string
	buyQty       decimal.Decimal
	sellQty      decimal.Decimal
	buyValue     decimal.Decimal
	sellValue    decimal.Decimal
	firstBuyDate string
	lastSellDate string
}

func exitedPositions(trades []domain.TradeRecord, held map[string]struct{}) []ExitedPosition {
	totals := make(map[string]*symbolTotals)
	var order []string

	for _, t := range trades {
		acc, ok := totals[t.Symbol]
		if !ok {
			acc = &symbolTotals{symbol: t.Symbol, exchange: t.Exchange}
			totals[t.Symbol] = acc
			order = append(order, t.Symbol)
		}

		switch {
		case t.IsBuy():
			acc.buyQty = acc.buyQty.Add(t.Quantity)
			acc.buyValue = acc.buyValue.Add(t.Value())
			if acc.firstBuyDate == "" {
				acc.firstBuyDate = t.TradeDate
			}
			if acc.isin == nil && t.ISIN != nil {
				isin := *t.ISIN
				acc.isin = &isin
			}
		case t.IsSell():
			acc.sellQty = acc.sellQty.Add(t.Quantity)
			acc.sellValue = acc.sellValue.Add(t.Value())
			acc.lastSellDate = t.TradeDate
		}
	}

	sort.Strings(order)
	positions := make([]ExitedPosition, 0)
	for _, symbol := range order {
		if _, ok := held[symbol]; ok {
			continue
		}
		acc := totals[symbol]
		if !acc.buyQty.IsPositive() {
			continue
		}
		if acc.buyQty.Sub(acc.sellQty).Abs().GreaterThan(balanceTolerance) {
			continue
		}
		positions = append(positions, acc.position())
	}

	return positions
}

func (a *symbolTotals) position() ExitedPosition {
	avgSell := decimal.Zero
	if a.sellQty.IsPositive() {
		avgSell = a.sellValue.Div(a.sellQty)
	}

	return ExitedPosition{
		Symbol:         a.symbol,
		Exchange:       a.exchange,
		ISIN:           a.isin,
		AvgBuyPrice:    a.buyValue.Div(a.buyQty).Round(2),
		AvgSellPrice:   avgSell.Round(2),
		TotalQtyTraded: a.buyQty.Round(2),
		TotalInvested:  a.buyValue.Round(2),
		TotalProceeds:  a.sellValue.Round(2),
		TotalPnL:       a.sellValue.Sub(a.buyValue).Round(2),
		FirstBuyDate:   a.firstBuyDate,
		LastSellDate:   a.lastSellDate,
	}
}
