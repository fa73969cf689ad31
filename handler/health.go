package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/gowompi/infra/response"
	"github.com/mstgnz/gowompi/provider"
)

const healthCheckTimeout = 5 * time.Second

// BreakerReporter reports the gateway circuit breaker state
type BreakerReporter interface {
	BreakerState() string
}

// Pinger is implemented by token caches backed by a database
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatsReporter is implemented by the in-memory token cache
type CacheStatsReporter interface {
	Stats() provider.CacheStats
}

// HealthHandler handles health check requests
type HealthHandler struct {
	gateway     BreakerReporter
	cache       provider.TokenCache
	cacheName   string
	callLogging bool
	environment string
	startTime   time.Time
}

// HealthStatus represents overall service health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Services    map[string]*ServiceHealth `json:"services"`
	System      *SystemHealth             `json:"system"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status       string `json:"status"`
	Healthy      bool   `json:"healthy"`
	LastCheck    string `json:"last_check"`
	ResponseTime string `json:"response_time,omitempty"`
	Description  string `json:"description,omitempty"`
	Error        string `json:"error,omitempty"`

	CacheStats *provider.CacheStats `json:"cache_stats,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc      string `json:"alloc"`
	TotalAlloc string `json:"total_alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
}

// NewHealthHandler creates a new health handler. cacheName labels the token
// cache backend in the report.
func NewHealthHandler(gateway BreakerReporter, cache provider.TokenCache, cacheName string, callLogging bool, environment string) *HealthHandler {
	return &HealthHandler{
		gateway:     gateway,
		cache:       cache,
		cacheName:   cacheName,
		callLogging: callLogging,
		environment: environment,
		startTime:   time.Now(),
	}
}

// CheckHealth reports service health. A missing gateway client or an
// unreachable token cache is unhealthy, an open breaker is degraded.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: h.environment,
		Services: map[string]*ServiceHealth{
			"wompi_gateway": h.checkGateway(),
			"token_cache":   h.checkTokenCache(ctx),
			"call_logging":  h.checkCallLogging(),
		},
		System: checkSystemHealth(),
	}

	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkGateway() *ServiceHealth {
	service := &ServiceHealth{LastCheck: time.Now().UTC().Format(time.RFC3339)}

	if h.gateway == nil {
		service.Status = "unhealthy"
		service.Error = "Gateway client not initialized"
		return service
	}

	switch state := h.gateway.BreakerState(); state {
	case "open":
		service.Status = "degraded"
		service.Healthy = false
		service.Description = "Circuit breaker is open"
	default:
		service.Status = "healthy"
		service.Healthy = true
		service.Description = "Circuit breaker " + state
	}
	return service
}

func (h *HealthHandler) checkTokenCache(ctx context.Context) *ServiceHealth {
	service := &ServiceHealth{LastCheck: time.Now().UTC().Format(time.RFC3339)}

	if h.cache == nil {
		service.Status = "unhealthy"
		service.Error = "Token cache not initialized"
		return service
	}

	service.Description = h.cacheName + " token cache"
	if reporter, ok := h.cache.(CacheStatsReporter); ok {
		stats := reporter.Stats()
		service.CacheStats = &stats
	}

	pinger, ok := h.cache.(Pinger)
	if !ok {
		service.Status = "healthy"
		service.Healthy = true
		return service
	}

	started := time.Now()
	err := pinger.Ping(ctx)
	service.ResponseTime = time.Since(started).String()
	if err != nil {
		service.Status = "unhealthy"
		service.Error = err.Error()
		return service
	}

	service.Status = "healthy"
	service.Healthy = true
	return service
}

func (h *HealthHandler) checkCallLogging() *ServiceHealth {
	service := &ServiceHealth{
		LastCheck: time.Now().UTC().Format(time.RFC3339),
		Healthy:   true,
	}
	if h.callLogging {
		service.Status = "healthy"
		service.Description = "Gateway calls are recorded in OpenSearch"
	} else {
		service.Status = "not_configured"
		service.Description = "OpenSearch logging is disabled"
	}
	return service
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:      formatBytes(memStats.Alloc),
			TotalAlloc: formatBytes(memStats.TotalAlloc),
			Sys:        formatBytes(memStats.Sys),
			GCRuns:     memStats.NumGC,
		},
		GoRoutines: runtime.NumGoroutine(),
	}
}

// determineOverallStatus determines overall service status
func determineOverallStatus(health *HealthStatus) string {
	status := "healthy"
	for _, service := range health.Services {
		switch service.Status {
		case "unhealthy":
			return "unhealthy"
		case "degraded":
			status = "degraded"
		}
	}
	return status
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
