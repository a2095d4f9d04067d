package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/asturkmani/superfinance-mcp/internal/database"
	"github.com/asturkmani/superfinance-mcp/internal/scheduler"
)

// refreshJobNames maps the refresh_type query values onto job names.
var refreshJobNames = map[string]string{
	"prices":   "refresh_prices",
	"fx":       "refresh_fx",
	"holdings": "refresh_holdings",
}

// SystemHandlers serves cache administration and process monitoring
// endpoints.
type SystemHandlers struct {
	log       zerolog.Logger
	cacheDB   *database.DB
	cacheRepo *cachedata.Repository
	scheduler *scheduler.Scheduler
	startTime time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(cacheDB *database.DB, cacheRepo *cachedata.Repository, sched *scheduler.Scheduler, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		cacheDB:   cacheDB,
		cacheRepo: cacheRepo,
		scheduler: sched,
		startTime: time.Now(),
	}
}

// RegisterRoutes mounts the system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/cache/status", h.HandleCacheStatus)
	r.Post("/cache/refresh", h.HandleCacheRefresh)
	r.Get("/system/status", h.HandleSystemStatus)
}

// HandleCacheStatus reports cache contents, refresh bookkeeping, database
// statistics and registered jobs.
func (h *SystemHandlers) HandleCacheStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.cacheRepo.GetStatus()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]interface{}{
		"cache": status,
	}

	if h.scheduler != nil {
		response["jobs"] = h.scheduler.Jobs()
	}

	if h.cacheDB != nil {
		if stats, err := h.cacheDB.GetStats(); err == nil {
			response["database"] = map[string]interface{}{
				"path":     h.cacheDB.Path(),
				"size_mb":  float64(stats.SizeBytes) / 1024 / 1024,
				"wal_mb":   float64(stats.WALSizeBytes) / 1024 / 1024,
				"pages":    stats.PageCount,
				"freelist": stats.FreelistCount,
			}
		} else {
			h.log.Warn().Err(err).Msg("Failed to read database stats")
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleCacheRefresh triggers one or all refresh jobs immediately.
// POST /api/cache/refresh?refresh_type=prices|fx|holdings|all
func (h *SystemHandlers) HandleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		h.writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	refreshType := r.URL.Query().Get("refresh_type")
	if refreshType == "" {
		refreshType = "all"
	}

	var names []string
	if refreshType == "all" {
		for _, name := range refreshJobNames {
			names = append(names, name)
		}
	} else {
		name, ok := refreshJobNames[refreshType]
		if !ok {
			h.writeError(w, http.StatusBadRequest, "refresh_type must be prices, fx, holdings or all")
			return
		}
		names = []string{name}
	}

	results := make(map[string]string, len(names))
	for _, name := range names {
		found, err := h.scheduler.RunJobByName(name)
		switch {
		case !found:
			results[name] = "not registered"
		case err != nil:
			results[name] = err.Error()
		default:
			results[name] = "ok"
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"refresh_type": refreshType,
		"results":      results,
	})
}

// HandleSystemStatus reports process health: uptime, goroutines, CPU and
// memory. The short CPU sampling interval keeps the endpoint responsive.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cpuAvg := 0.0
	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	}

	memUsed := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		memUsed = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuAvg,
		"memory_percent": memUsed,
		"heap_alloc_mb":  m.Alloc / 1024 / 1024,
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(h.log, w, status, data)
}

func (h *SystemHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
