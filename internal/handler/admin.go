package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"ecotrace-api/internal/service"
	"ecotrace-api/pkg/response"
)

// StatsProvider computes domain statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) (*service.Stats, error)
}

// SweepRunner triggers an immediate verification sweep.
type SweepRunner interface {
	RunNow() (service.SweepReport, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	stats     StatsProvider
	sweeper   SweepRunner
	dbType    string // Document store backend: memory, sqlite, postgres, mongodb
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. sweeper may be nil.
func NewAdminHandler(stats StatsProvider, sweeper SweepRunner, dbType string) *AdminHandler {
	return &AdminHandler{
		stats:     stats,
		sweeper:   sweeper,
		dbType:    dbType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["server_time"] = time.Now().UTC().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.stats != nil {
		domain, err := h.stats.GetStats(r.Context())
		if err == nil {
			stats["store"] = domain
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// RunSweep handles POST /api/v1/admin/sweep
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		response.OK(w, map[string]string{"status": "not_configured"})
		return
	}
	report, err := h.sweeper.RunNow()
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, report)
}
