package handler

import (
	"net/http"
	"runtime"
	"time"

	"universalis-alerts/internal/pipeline"
	"universalis-alerts/pkg/response"
)

// StatsSource exposes pipeline counters.
type StatsSource interface {
	Stats() pipeline.Stats
}

// StatsHandler serves pipeline and process statistics.
type StatsHandler struct {
	source    StatsSource
	dbType    string
	startTime time.Time
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(source StatsSource, dbType string) *StatsHandler {
	return &StatsHandler{
		source:    source,
		dbType:    dbType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	if h.source != nil {
		stats["pipeline"] = h.source.Stats()
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
