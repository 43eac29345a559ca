package handlers

import (
	"github.com/aristath/tunefolio/internal/modules/pnl"
	"github.com/aristath/tunefolio/internal/modules/reconciliation"
)

// symbolPnLResponse is the per-symbol part of the P&L response
type symbolPnLResponse struct {
	RealisedPnL  float64 `json:"realised_pnl"`
	QtySold      float64 `json:"qty_sold"`
	UnmatchedQty float64 `json:"unmatched_qty,omitempty"`
}

// pnlResponse is the JSON shape of a realised P&L report
type pnlResponse struct {
	Start            string                       `json:"start,omitempty"`
	End              string                       `json:"end,omitempty"`
	TotalRealisedPnL float64                      `json:"total_realised_pnl"`
	BySymbol         map[string]symbolPnLResponse `json:"by_symbol"`
	TotalSymbolsSold int                          `json:"total_symbols_sold"`
	TotalSells       int                          `json:"total_sells"`
}

func newPnLResponse(report *pnl.Report) pnlResponse {
	resp := pnlResponse{
		Start:            report.Window.Start,
		End:              report.Window.End,
		TotalRealisedPnL: report.TotalRealisedPnL.InexactFloat64(),
		BySymbol:         make(map[string]symbolPnLResponse, len(report.BySymbol)),
		TotalSymbolsSold: report.TotalSymbolsSold,
		TotalSells:       report.TotalSells,
	}
	for symbol, s := range report.BySymbol {
		resp.BySymbol[symbol] = symbolPnLResponse{
			RealisedPnL:  s.RealisedPnL.InexactFloat64(),
			QtySold:      s.QtySold.InexactFloat64(),
			UnmatchedQty: s.UnmatchedQty.InexactFloat64(),
		}
	}
	return resp
}

// positionResponse is the JSON shape of an exited position
type positionResponse struct {
	Symbol         string  `json:"symbol"`
	Exchange       string  `json:"exchange"`
	ISIN           *string `json:"isin"`
	AvgBuyPrice    float64 `json:"avg_buy_price"`
	AvgSellPrice   float64 `json:"avg_sell_price"`
	TotalQtyTraded float64 `json:"total_qty_traded"`
	TotalInvested  float64 `json:"total_invested"`
	TotalProceeds  float64 `json:"total_proceeds"`
	TotalPnL       float64 `json:"total_pnl"`
	FirstBuyDate   string  `json:"first_buy_date"`
	LastSellDate   string  `json:"last_sell_date"`
}

func newPositionResponse(p reconciliation.ExitedPosition) positionResponse {
	return positionResponse{
		Symbol:         p.Symbol,
		Exchange:       p.Exchange,
		ISIN:           p.ISIN,
		AvgBuyPrice:    p.AvgBuyPrice.InexactFloat64(),
		AvgSellPrice:   p.AvgSellPrice.InexactFloat64(),
		TotalQtyTraded: p.TotalQtyTraded.InexactFloat64(),
		TotalInvested:  p.TotalInvested.InexactFloat64(),
		TotalProceeds:  p.TotalProceeds.InexactFloat64(),
		TotalPnL:       p.TotalPnL.InexactFloat64(),
		FirstBuyDate:   p.FirstBuyDate,
		LastSellDate:   p.LastSellDate,
	}
}
