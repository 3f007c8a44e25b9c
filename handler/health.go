package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/infra/response"
)

// Pinger is implemented by the exchange journal
type Pinger interface {
	Ping(ctx context.Context) error
}

// SearchStatus is implemented by the OpenSearch client
type SearchStatus interface {
	IsEnabled() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	journal   Pinger
	search    SearchStatus
	gateway   *config.Gateway
	service   GatewayService
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Database    *DatabaseHealth           `json:"database"`
	Gateway     *GatewayHealth            `json:"gateway"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// DatabaseHealth represents journal database health
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// GatewayHealth describes the configured merchant
type GatewayHealth struct {
	Status     string `json:"status"`
	Configured bool   `json:"configured"`
	Sandbox    bool   `json:"sandbox"`
	BaseURL    string `json:"base_url,omitempty"`
	SysID      string `json:"sys_id,omitempty"`
	Operations int    `json:"operations"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	Disk       *DiskHealth   `json:"disk"`
	GoRoutines int           `json:"goroutines"`
	CGoCalls   int64         `json:"cgo_calls"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc        string  `json:"alloc"`
	TotalAlloc   string  `json:"total_alloc"`
	Sys          string  `json:"sys"`
	GCRuns       uint32  `json:"gc_runs"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskHealth represents disk usage
type DiskHealth struct {
	Available    string  `json:"available"`
	Used         string  `json:"used"`
	Total        string  `json:"total"`
	UsagePercent float64 `json:"usage_percent"`
	Status       string  `json:"status"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	LastCheck   string `json:"last_check"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler. Any dependency may be nil.
func NewHealthHandler(journal Pinger, search SearchStatus, gateway *config.Gateway, service GatewayService) *HealthHandler {
	return &HealthHandler{
		journal:   journal,
		search:    search,
		gateway:   gateway,
		service:   service,
		startTime: time.Now(),
	}
}

// CheckHealth performs comprehensive health checks
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: getEnvironment(),
		Database:    h.checkDatabaseHealth(ctx),
		Gateway:     h.checkGatewayHealth(),
		System:      h.checkSystemHealth(),
		Services:    h.checkServicesHealth(),
	}

	health.Status = h.determineOverallStatus(health)

	// degraded still answers 200, clients read the status field
	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkDatabaseHealth pings the journal database
func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{Status: "unknown"}

	if h.journal == nil {
		dbHealth.Status = "not_configured"
		dbHealth.Error = "Journal not configured"
		return dbHealth
	}

	start := time.Now()
	err := h.journal.Ping(ctx)
	elapsed := time.Since(start)
	dbHealth.ResponseTime = fmt.Sprintf("%.0fms", float64(elapsed.Nanoseconds())/1e6)
	if err != nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = err.Error()
		return dbHealth
	}

	dbHealth.Connected = true
	if elapsed > time.Second {
		dbHealth.Status = "degraded"
	} else {
		dbHealth.Status = "healthy"
	}
	return dbHealth
}

func (h *HealthHandler) checkGatewayHealth() *GatewayHealth {
	gw := &GatewayHealth{Status: "not_configured"}
	if h.service != nil {
		gw.Operations = len(h.service.Operations())
	}
	if h.gateway == nil || h.gateway.SysID == "" {
		return gw
	}

	gw.Configured = true
	gw.Sandbox = h.gateway.Sandbox
	gw.BaseURL = h.gateway.BaseURL
	gw.SysID = h.gateway.SysID
	gw.Status = "healthy"
	return gw
}

// checkSystemHealth checks system resource health
func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:        formatBytes(memStats.Alloc),
			TotalAlloc:   formatBytes(memStats.TotalAlloc),
			Sys:          formatBytes(memStats.Sys),
			GCRuns:       memStats.NumGC,
			UsagePercent: calculateMemoryUsagePercent(memStats),
		},
		Disk:       h.getDiskUsage(),
		GoRoutines: runtime.NumGoroutine(),
		CGoCalls:   runtime.NumCgoCall(),
	}
}

func (h *HealthHandler) checkServicesHealth() map[string]*ServiceHealth {
	now := time.Now().UTC().Format(time.RFC3339)
	services := make(map[string]*ServiceHealth)

	services["gateway_service"] = &ServiceHealth{LastCheck: now}
	if h.service != nil {
		services["gateway_service"].Status = "healthy"
		services["gateway_service"].Healthy = true
		services["gateway_service"].Description = "Huifu operation dispatcher"
	} else {
		services["gateway_service"].Status = "unhealthy"
		services["gateway_service"].Error = "Gateway service not initialized"
	}

	services["search_logger"] = &ServiceHealth{LastCheck: now}
	if h.search != nil && h.search.IsEnabled() {
		services["search_logger"].Status = "healthy"
		services["search_logger"].Healthy = true
		services["search_logger"].Description = "Exchange logging to OpenSearch"
	} else {
		services["search_logger"].Status = "not_configured"
		services["search_logger"].Description = "OpenSearch logging disabled"
	}

	return services
}

// determineOverallStatus determines overall system status
func (h *HealthHandler) determineOverallStatus(health *HealthStatus) string {
	if health.Database != nil && health.Database.Status == "unhealthy" {
		return "unhealthy"
	}
	if service, ok := health.Services["gateway_service"]; ok && !service.Healthy {
		return "unhealthy"
	}
	if health.Gateway != nil && !health.Gateway.Configured {
		return "unhealthy"
	}

	if health.System != nil {
		if health.System.Memory.UsagePercent > 90 {
			return "degraded"
		}
		if health.System.Disk != nil && health.System.Disk.UsagePercent > 90 {
			return "degraded"
		}
	}
	if health.Database != nil && health.Database.Status == "degraded" {
		return "degraded"
	}

	return "healthy"
}

// Helper functions

func getEnvironment() string {
	if env := config.GetEnv("ENVIRONMENT", ""); env != "" {
		return env
	}
	if env := config.GetEnv("ENV", ""); env != "" {
		return env
	}
	return "development"
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

func calculateMemoryUsagePercent(memStats runtime.MemStats) float64 {
	if memStats.Sys == 0 {
		return 0
	}
	return (float64(memStats.Alloc) / float64(memStats.Sys)) * 100
}

func (h *HealthHandler) getDiskUsage() *DiskHealth {
	var stat syscall.Statfs_t
	wd := "/"

	disk := &DiskHealth{
		Status: "unknown",
	}

	if err := syscall.Statfs(wd, &stat); err != nil {
		disk.Status = "error"
		return disk
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	used := total - (stat.Bfree * uint64(stat.Bsize))

	disk.Available = formatBytes(available)
	disk.Total = formatBytes(total)
	disk.Used = formatBytes(used)
	if total > 0 {
		disk.UsagePercent = (float64(used) / float64(total)) * 100
	}

	if disk.UsagePercent > 90 {
		disk.Status = "critical"
	} else if disk.UsagePercent > 80 {
		disk.Status = "warning"
	} else {
		disk.Status = "healthy"
	}

	return disk
}
