package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/infra/response"
)

// Pinger is the part of the store the health check needs
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderLister lists the registered bank adapters
type ProviderLister interface {
	GetProviderNames() []string
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store     Pinger
	providers ProviderLister
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Uptime      string          `json:"uptime"`
	Environment string          `json:"environment"`
	Database    *DatabaseHealth `json:"database"`
	Providers   []string        `json:"providers"`
	System      *SystemHealth   `json:"system"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, providers ProviderLister) *HealthHandler {
	return &HealthHandler{
		store:     store,
		providers: providers,
		startTime: time.Now(),
	}
}

// CheckHealth reports database reachability, the registered adapters and
// process statistics. The service is unhealthy when the store is down or
// no adapter is registered.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: config.GetAppConfig().Environment,
		Database:    h.checkDatabaseHealth(ctx),
		System:      checkSystemHealth(),
	}
	if h.providers != nil {
		health.Providers = h.providers.GetProviderNames()
	}

	health.Status = "healthy"
	switch {
	case !health.Database.Connected, len(health.Providers) == 0:
		health.Status = "unhealthy"
	case health.Database.Status == "degraded":
		health.Status = "degraded"
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	db := &DatabaseHealth{Status: "not_configured"}
	if h.store == nil {
		db.Error = "Database not configured"
		return db
	}

	start := time.Now()
	err := h.store.Ping(ctx)
	elapsed := time.Since(start)
	db.ResponseTime = fmt.Sprintf("%.0fms", float64(elapsed.Nanoseconds())/1e6)
	if err != nil {
		db.Status = "unhealthy"
		db.Error = err.Error()
		return db
	}

	db.Connected = true
	db.Status = "healthy"
	if elapsed > time.Second {
		db.Status = "degraded"
	}
	return db
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
