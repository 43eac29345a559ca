// Package pnl computes realised profit and loss by FIFO lot matching.
package pnl

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tunefolio/internal/domain"
	"github.com/aristath/tunefolio/internal/modules/fiscal"
)

// SymbolPnL is the realised result of one instrument within the window
type SymbolPnL struct {
	RealisedPnL  decimal.Decimal `json:"realised_pnl"`
	QtySold      decimal.Decimal `json:"qty_sold"`
	UnmatchedQty decimal.Decimal `json:"unmatched_qty"` // sold with no open lot left
}

// Report is the realised P&L over a window of sell dates
type Report struct {
	Window           fiscal.Window        `json:"window"`
	TotalRealisedPnL decimal.Decimal      `json:"total_realised_pnl"`
	BySymbol         map[string]SymbolPnL `json:"by_symbol"`
	TotalSymbolsSold int                  `json:"total_symbols_sold"`
	TotalSells       int                  `json:"total_sells"`
}

// Symbols returns the sold symbols in alphabetical order
func (r *Report) Symbols() []string {
	symbols := make([]string, 0, len(r.BySymbol))
	for symbol := range r.BySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// buyLot is an open buy with quantity not yet matched by sells
type buyLot struct {
	remaining decimal.Decimal
	price     decimal.Decimal
	date      string
}

// Compute replays trades in order and matches every sell against the oldest
// open lots of the same symbol. The window only selects which sells are
// reported; sells outside it still consume lots.
// trades must be ordered per symbol as returned by LedgerReader.ListChronological.
func Compute(trades []domain.TradeRecord, window fiscal.Window, log zerolog.Logger) *Report {
	report := &Report{
		Window:           window,
		TotalRealisedPnL: decimal.Zero,
		BySymbol:         make(map[string]SymbolPnL),
	}

	total := decimal.Zero
	for _, group := range groupBySymbol(trades) {
		symbol := group[0].Symbol
		queue := make([]*buyLot, 0)
		realised := decimal.Zero
		sold := decimal.Zero
		unmatched := decimal.Zero

		for _, t := range group {
			if t.IsBuy() {
				queue = append(queue, &buyLot{remaining: t.Quantity, price: t.Price, date: t.TradeDate})
				continue
			}
			if !t.IsSell() {
				continue
			}

			inWindow := window.Contains(t.TradeDate)
			remaining := t.Quantity
			sellPnL := decimal.Zero

			for remaining.IsPositive() && len(queue) > 0 {
				oldest := queue[0]
				matched := decimal.Min(remaining, oldest.remaining)
				sellPnL = sellPnL.Add(t.Price.Sub(oldest.price).Mul(matched))

				oldest.remaining = oldest.remaining.Sub(matched)
				remaining = remaining.Sub(matched)
				if !oldest.remaining.IsPositive() {
					queue = queue[1:]
				}
			}

			if remaining.IsPositive() {
				log.Warn().
					Str("symbol", symbol).
					Str("trade_id", t.TradeID).
					Str("trade_date", t.TradeDate).
					Str("unmatched_qty", remaining.String()).
					Msg("Sell exceeds open buy lots, unmatched quantity ignored")
			}

			if inWindow {
				realised = realised.Add(sellPnL)
				sold = sold.Add(t.Quantity)
				unmatched = unmatched.Add(remaining)
				report.TotalSells++
			}
		}

		if sold.IsPositive() {
			report.BySymbol[symbol] = SymbolPnL{
				RealisedPnL:  realised.Round(2),
				QtySold:      sold.Round(2),
				UnmatchedQty: unmatched.Round(2),
			}
			total = total.Add(realised)
		}
	}

	report.TotalRealisedPnL = total.Round(2)
	report.TotalSymbolsSold = len(report.BySymbol)
	return report
}

// groupBySymbol splits trades into per-symbol groups, keeping input order
// within each group. Exchanges are pooled.
func groupBySymbol(trades []domain.TradeRecord) [][]domain.TradeRecord {
	index := make(map[string]int)
	var groups [][]domain.TradeRecord
	for _, t := range trades {
		i, ok := index[t.Symbol]
		if !ok {
			i = len(groups)
			index[t.Symbol] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}
