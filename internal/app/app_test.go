package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcli/internal/config"
	"sfcli/internal/exporter"
	"sfcli/internal/hierarchy"
	"sfcli/internal/reconcile"
	"sfcli/internal/services"
)

func testApplication(t *testing.T) *Application {
	t.Helper()

	cfg := &config.Config{}
	cfg.Paths.ModelsDir = t.TempDir()
	cfg.Paths.ReportsDir = t.TempDir()
	cfg.Security.EnableCORS = false
	cfg.Security.RateLimit.Enabled = false

	spec, err := hierarchy.BuildSpec([]int{1}, []string{"DAIRY"})
	require.NoError(t, err)
	require.NoError(t, hierarchy.SaveArtifacts(cfg.Paths.ModelsDir, spec, hierarchy.BuildSummingMatrix(spec)))

	frame := reconcile.NewFrame("bottom_up")
	frame.Append("Total", time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC), map[string]float64{"bottom_up": 10})
	frame.Append("1_DAIRY", time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC), map[string]float64{"bottom_up": 10})
	require.NoError(t, exporter.NewCSVWriter().WriteForecastCSV(cfg.ReportPath(services.ForecastFilename), frame))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &Application{
		Config:   cfg,
		Logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.ForecastService = services.NewForecastService(cfg, nil, logger)
	a.HealthService = services.NewHealthService(Version, cfg.Paths, a.ForecastService, nil, logger)
	a.setupRouter()
	return a
}

func TestRouterHealth(t *testing.T) {
	a := testApplication(t)

	for _, path := range []string{"/health", "/api/health", "/api/health/ready", "/api/health/live", "/api/version"} {
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouterHierarchy(t *testing.T) {
	a := testApplication(t)

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hierarchy", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"n_bottom":1`)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	a := testApplication(t)

	// Generate one request so counters exist
	a.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sfcli_http_requests_total")
}

func TestRouterAdminRequiresKey(t *testing.T) {
	a := testApplication(t)

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/reload", nil))

	// No admin key hash configured
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterRequestIDHeader(t *testing.T) {
	a := testApplication(t)

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
