package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tunefolio/internal/database"
	"github.com/aristath/tunefolio/internal/domain"
	"github.com/aristath/tunefolio/internal/modules/imports"
	"github.com/aristath/tunefolio/internal/reliability"
	"github.com/aristath/tunefolio/internal/scheduler"
)

// JobRunner reports the scheduler state and runs jobs on demand
type JobRunner interface {
	Status() scheduler.Status
	RunNow(job scheduler.Job) error
}

// SyncStatusProvider reports the last live sync
type SyncStatusProvider interface {
	LastResult() *imports.SyncResult
}

// BackupLister lists stored ledger backups
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string              `json:"status"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	CPUPercent    float64             `json:"cpu_percent"`
	RAMPercent    float64             `json:"ram_percent"`
	TradeCount    int64               `json:"trade_count"`
	LastSync      *imports.SyncResult `json:"last_sync"`
	Scheduler     scheduler.Status    `json:"scheduler"`
}

// DBInfo describes one SQLite database
type DBInfo struct {
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	SizeMB       float64 `json:"size_mb"`
	WALSizeMB    float64 `json:"wal_size_mb"`
	PageCount    int64   `json:"page_count"`
	HealthStatus string  `json:"health_status"`
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	ledger      domain.LedgerReader
	databases   []*database.DB
	scheduler   JobRunner
	sync        SyncStatusProvider // optional
	backups     BackupLister       // optional
	jobs        map[string]scheduler.Job
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	ledger domain.LedgerReader,
	databases []*database.DB,
	sched JobRunner,
	sync SyncStatusProvider,
	backups BackupLister,
	jobs []scheduler.Job,
) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		ledger:      ledger,
		databases:   databases,
		scheduler:   sched,
		sync:        sync,
		backups:     backups,
		jobs:        make(map[string]scheduler.Job, len(jobs)),
	}
	h.systemStats = h.getSystemStats
	for _, job := range jobs {
		h.jobs[job.Name()] = job
	}
	return h
}

// HandleSystemStatus returns the overall service status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Scheduler:     h.scheduler.Status(),
	}

	count, err := h.ledger.Watermark(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count ledger trades")
		response.Status = "degraded"
	}
	response.TradeCount = count

	if h.sync != nil {
		response.LastSync = h.sync.LastResult()
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus returns scheduler job status
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "Unknown job " + name})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	err := h.scheduler.RunNow(job)
	if errors.Is(err, scheduler.ErrJobRunning) {
		h.writeJSON(w, http.StatusConflict, map[string]string{"status": "error", "message": name + " is already running"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": name + " completed"})
}

// HandleDatabaseStats returns SQLite database statistics
// GET /api/system/database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := make([]DBInfo, 0, len(h.databases))
	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Path: db.Path(), HealthStatus: "healthy"}

		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			info.HealthStatus = "unknown"
		} else {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
			info.PageCount = stats.PageCount
		}

		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			info.HealthStatus = "unhealthy"
		}

		infos = append(infos, info)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":    infos,
		"last_checked": time.Now().Format(time.RFC3339),
	})
}

// HandleListBackups lists the ledger backups in object storage
// GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false, "backups": []reliability.BackupInfo{}})
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to list backups", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": true, "backups": backups})
}

// getSystemStats samples CPU over 100ms and reads memory usage
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// RegisterRoutes registers the system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/jobs", h.HandleJobsStatus)
		r.Post("/jobs/{name}", h.HandleTriggerJob)
		r.Get("/database", h.HandleDatabaseStats)
		r.Get("/backups", h.HandleListBackups)
	})
}
