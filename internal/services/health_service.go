package services

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"sfcli/internal/cache"
	"sfcli/internal/config"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	paths     config.PathsConfig
	forecast  *ForecastService
	cache     *cache.PredictionCache
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the health endpoint response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// VersionInfo is the version endpoint response
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// NewHealthService creates a new health service
func NewHealthService(version string, paths config.PathsConfig, forecast *ForecastService, predCache *cache.PredictionCache, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		paths:     paths,
		forecast:  forecast,
		cache:     predCache,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck reports overall service health
func (s *HealthService) HealthCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(s.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
		Services: map[string]interface{}{},
	}

	if s.forecast != nil {
		if s.forecast.Ready() {
			status.Services["forecast"] = "ready"
		} else {
			status.Services["forecast"] = "no artifacts"
			status.Status = "degraded"
		}
	}
	if s.cache != nil {
		status.Services["cache"] = s.cache.Stats()
	}
	if _, err := os.Stat(s.paths.ReportsDir); err != nil {
		status.Services["reports_dir"] = "missing"
		status.Status = "degraded"
	}

	return status
}

// ReadinessCheck reports whether the service can serve predictions
func (s *HealthService) ReadinessCheck(ctx context.Context) map[string]interface{} {
	ready := s.forecast != nil && s.forecast.Ready()
	return map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now().UTC(),
	}
}

// LivenessCheck reports that the process is responsive
func (s *HealthService) LivenessCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	}
}

// Version reports build information
func (s *HealthService) Version() *VersionInfo {
	return &VersionInfo{
		Version:   s.version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
