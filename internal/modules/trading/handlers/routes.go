package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Post("/import", h.HandleImport)            // Tradebook upload or directory import
		r.Post("/sync", h.HandleSync)                // Live broker sync
		r.Put("/sync/token", h.HandleSetAccessToken) // Daily broker token refresh
		r.Get("/imports", h.HandleGetImportRuns)     // Import audit trail
		r.Get("/pnl", h.HandleGetPnL)                // Realised P&L
		r.Get("/fys", h.HandleGetFYs)                // Financial years with sells
		r.Get("/historical", h.HandleGetHistorical)  // Fully exited positions
	})
}
