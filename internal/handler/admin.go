package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"carvalue-api/internal/service"
	"carvalue-api/pkg/apierror"
	"carvalue-api/pkg/response"
)

// StatsSource reports listing store statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Cleaner runs an on-demand cleanup.
type Cleaner interface {
	RunNow() (service.CleanupResult, error)
}

// CacheClearer empties the valuation cache.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	listings  StatsSource
	cleaner   Cleaner
	cache     CacheClearer // nil when caching is disabled
	dbType    string
	cacheType string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(listings StatsSource, cleaner Cleaner, cache CacheClearer, dbType, cacheType string) *AdminHandler {
	return &AdminHandler{
		listings:  listings,
		cleaner:   cleaner,
		cache:     cache,
		dbType:    dbType,
		cacheType: cacheType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType
	stats["cache_type"] = h.cacheType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.listings != nil {
		listingStats, err := h.listings.GetStats(ctx)
		if err == nil {
			listingStats["status"] = "connected"
			stats["listings"] = listingStats
		} else {
			stats["listings"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["listings"] = map[string]interface{}{
			"status": "not_configured",
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

// RunCleanup handles POST /api/v1/admin/cleanup
func (h *AdminHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.cleaner.RunNow()
	if err != nil {
		response.Error(w, apierror.ServiceUnavailable("cleanup failed: "+err.Error()))
		return
	}
	response.OK(w, res)
}

// ClearCache handles DELETE /api/v1/admin/cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		response.Error(w, apierror.NotFound("cache is disabled"))
		return
	}
	if err := h.cache.Clear(r.Context()); err != nil {
		response.Error(w, apierror.ServiceUnavailable("cache unavailable"))
		return
	}
	response.NoContent(w)
}
