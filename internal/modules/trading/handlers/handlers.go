// Package handlers provides HTTP handlers for the trade ledger.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/domain"
	"github.com/aristath/tunefolio/internal/modules/fiscal"
	"github.com/aristath/tunefolio/internal/modules/imports"
	"github.com/aristath/tunefolio/internal/modules/pnl"
	"github.com/aristath/tunefolio/internal/modules/reconciliation"
)

// maxUploadMemory bounds the multipart form kept in memory; larger parts spill to disk
const maxUploadMemory = 32 << 20

// AccessTokenSetter accepts a new broker session token
type AccessTokenSetter interface {
	SetAccessToken(token string)
}

// TradingHandlers contains HTTP handlers for the trades API
type TradingHandlers struct {
	ledger       domain.LedgerReader
	runs         domain.ImportRunRecorder // optional
	importer     *imports.Importer
	syncService  *imports.SyncService // optional
	tokens       AccessTokenSetter    // optional
	pnlService   *pnl.Service
	reconciler   *reconciliation.Reconciler
	tradebookDir string
	now          func() time.Time
	log          zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(
	ledger domain.LedgerReader,
	runs domain.ImportRunRecorder,
	importer *imports.Importer,
	syncService *imports.SyncService,
	tokens AccessTokenSetter,
	pnlService *pnl.Service,
	reconciler *reconciliation.Reconciler,
	tradebookDir string,
	log zerolog.Logger,
) *TradingHandlers {
	return &TradingHandlers{
		ledger:       ledger,
		runs:         runs,
		importer:     importer,
		syncService:  syncService,
		tokens:       tokens,
		pnlService:   pnlService,
		reconciler:   reconciler,
		tradebookDir: tradebookDir,
		now:          time.Now,
		log:          log.With().Str("handler", "trading").Logger(),
	}
}

// HandleImport imports uploaded tradebook files, or the tradebook directory
// when the request carries no files.
// POST /api/trades/import
func (h *TradingHandlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	var (
		order   imports.DateOrder
		summary map[string]int
		err     error
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()
	}

	order, err = imports.ParseDateOrder(formOrQuery(r, "date_order"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	files := uploadedFiles(r)
	if len(files) == 0 {
		summary, err = h.importer.ImportDirectory(r.Context(), h.tradebookDir, order)
	} else {
		summary, err = h.importUploads(r, files, order)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to import tradebooks")
		h.writeError(w, http.StatusInternalServerError, "Failed to import tradebooks")
		return
	}

	total := 0
	for _, n := range summary {
		total += n
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"summary":        summary,
			"total_inserted": total,
		},
		"metadata": h.metadata(),
	})
}

func (h *TradingHandlers) importUploads(r *http.Request, files []*multipart.FileHeader, order imports.DateOrder) (map[string]int, error) {
	sources := make([]imports.BatchSource, 0, len(files))
	defer func() {
		for _, src := range sources {
			if f, ok := src.Reader.(multipart.File); ok {
				_ = f.Close()
			}
		}
	}()

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		sources = append(sources, imports.BatchSource{Name: fh.Filename, Reader: f, DateOrder: order})
	}

	return h.importer.ImportBatch(r.Context(), sources)
}

// HandleSync pulls the current session's trades from the broker
// POST /api/trades/sync
func (h *TradingHandlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	if h.syncService == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Trade sync not configured")
		return
	}

	result := h.syncService.Sync(r.Context())
	status := http.StatusOK
	if result.Status == imports.SyncStatusError {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, map[string]interface{}{
		"data":     result,
		"metadata": h.metadata(),
	})
}

// HandleSetAccessToken replaces the broker session token without a restart.
// With ?sync=true a sync runs right after.
// PUT /api/trades/sync/token
func (h *TradingHandlers) HandleSetAccessToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Trade sync not configured")
		return
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		h.writeError(w, http.StatusBadRequest, "access_token is required")
		return
	}

	h.tokens.SetAccessToken(body.AccessToken)
	h.log.Info().Msg("Broker access token updated")

	if r.URL.Query().Get("sync") == "true" {
		h.HandleSync(w, r)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     map[string]string{"status": "token_updated"},
		"metadata": h.metadata(),
	})
}

// HandleGetImportRuns returns the most recent import runs
// GET /api/trades/imports
func (h *TradingHandlers) HandleGetImportRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": []domain.ImportRun{}})
		return
	}

	limit := 20
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get import runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to get import runs")
		return
	}
	if runs == nil {
		runs = []domain.ImportRun{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     runs,
		"metadata": h.metadata(),
	})
}

// HandleGetPnL returns realised P&L for a financial year, a date range or all time
// GET /api/trades/pnl?fy=FY2024-25 | ?start=&end= | ?all=true
func (h *TradingHandlers) HandleGetPnL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var (
		report *pnl.Report
		err    error
	)
	switch {
	case query.Get("all") == "true":
		report, err = h.pnlService.Compute(r.Context(), fiscal.Window{})
	case query.Get("start") != "" || query.Get("end") != "":
		window := fiscal.Window{Start: query.Get("start"), End: query.Get("end")}
		for _, date := range []string{window.Start, window.End} {
			if date != "" && !imports.IsISODate(date) {
				h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", date))
				return
			}
		}
		report, err = h.pnlService.Compute(r.Context(), window)
	default:
		report, err = h.pnlService.ComputeFY(r.Context(), query.Get("fy"), h.now())
	}

	if errors.Is(err, fiscal.ErrInvalidLabel) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute realised P&L")
		h.writeError(w, http.StatusInternalServerError, "Failed to compute realised P&L")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     newPnLResponse(report),
		"metadata": h.metadata(),
	})
}

// HandleGetFYs returns the financial years that contain at least one sell
// GET /api/trades/fys
func (h *TradingHandlers) HandleGetFYs(w http.ResponseWriter, r *http.Request) {
	fys, err := fiscal.AvailableFYs(r.Context(), h.ledger, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get financial years")
		h.writeError(w, http.StatusInternalServerError, "Failed to get financial years")
		return
	}
	if fys == nil {
		fys = []string{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"fys":     fys,
			"current": fiscal.CurrentLabel(h.now()),
		},
		"metadata": h.metadata(),
	})
}

// HandleGetHistorical returns fully exited positions.
// held overrides the broker holdings lookup with a comma separated symbol list.
// GET /api/trades/historical
func (h *TradingHandlers) HandleGetHistorical(w http.ResponseWriter, r *http.Request) {
	var (
		positions []reconciliation.ExitedPosition
		err       error
	)

	if r.URL.Query().Has("held") {
		positions, err = h.reconciler.Reconcile(r.Context(), splitSymbols(r.URL.Query().Get("held")))
	} else {
		positions, err = h.reconciler.ReconcileWithHoldings(r.Context())
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reconcile historical holdings")
		h.writeError(w, http.StatusInternalServerError, "Failed to reconcile historical holdings")
		return
	}

	data := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		data = append(data, newPositionResponse(p))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": h.now().Format(time.RFC3339),
			"count":     len(data),
		},
	})
}

func (h *TradingHandlers) metadata() map[string]interface{} {
	return map[string]interface{}{"timestamp": h.now().Format(time.RFC3339)}
}

// writeJSON writes a JSON response
func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func formOrQuery(r *http.Request, key string) string {
	if r.MultipartForm != nil {
		if values := r.MultipartForm.Value[key]; len(values) > 0 {
			return values[0]
		}
	}
	return r.URL.Query().Get(key)
}

func uploadedFiles(r *http.Request) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	if files := r.MultipartForm.File["files[]"]; len(files) > 0 {
		return files
	}
	return r.MultipartForm.File["files"]
}

func splitSymbols(value string) []string {
	var symbols []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}
