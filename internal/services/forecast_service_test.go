package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcli/internal/config"
	"sfcli/internal/exporter"
	"sfcli/internal/hierarchy"
	"sfcli/internal/reconcile"
	"sfcli/internal/validation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeArtifacts builds a minimal pipeline output in temp dirs and
// returns a config pointing at them
func writeArtifacts(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Paths.ModelsDir = t.TempDir()
	cfg.Paths.ReportsDir = t.TempDir()

	spec, err := hierarchy.BuildSpec([]int{1, 2}, []string{"DAIRY", "GROCERY I"})
	require.NoError(t, err)
	require.NoError(t, hierarchy.SaveArtifacts(cfg.Paths.ModelsDir, spec, hierarchy.BuildSummingMatrix(spec)))

	frame := reconcile.NewFrame("bottom_up", "min_trace_shrink")
	date := time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC)
	frame.Append("Total", date, map[string]float64{"bottom_up": 100, "min_trace_shrink": 98})
	frame.Append("1_DAIRY", date, map[string]float64{"bottom_up": 40, "min_trace_shrink": 39})
	require.NoError(t, exporter.NewCSVWriter().WriteForecastCSV(cfg.ReportPath(ForecastFilename), frame))

	return cfg
}

func TestForecastServicePredict(t *testing.T) {
	svc := NewForecastService(writeArtifacts(t), nil, testLogger())
	require.True(t, svc.Ready())

	date := time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC)
	p, err := svc.Predict(context.Background(), "1_DAIRY", date, "bottom_up")
	require.NoError(t, err)
	assert.Equal(t, 40.0, p.Value)
	assert.False(t, p.Cached)
	assert.Equal(t, "2017-08-16", p.Date)
}

func TestForecastServicePredictErrors(t *testing.T) {
	svc := NewForecastService(writeArtifacts(t), nil, testLogger())
	ctx := context.Background()
	date := time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		series  string
		date    time.Time
		method  string
		wantErr error
	}{
		{"unknown series", "9_DAIRY", date, "bottom_up", ErrSeriesNotFound},
		{"unknown method", "1_DAIRY", date, "top_down_forecast_proportions", ErrMethodNotFound},
		{"date out of window", "1_DAIRY", date.AddDate(0, 0, 200), "bottom_up", ErrDateNotForecast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Predict(ctx, tt.series, tt.date, tt.method)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestForecastServiceHierarchy(t *testing.T) {
	svc := NewForecastService(writeArtifacts(t), nil, testLogger())

	summary, err := svc.Hierarchy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, summary.Stores)
	assert.Equal(t, 4, summary.NBottom)
	assert.Equal(t, 9, summary.NTotal)
	assert.Equal(t, []string{"bottom_up", "min_trace_shrink"}, summary.Methods)
}

func TestForecastServiceStartsEmptyWithoutArtifacts(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.ModelsDir = t.TempDir()
	cfg.Paths.ReportsDir = t.TempDir()

	svc := NewForecastService(cfg, nil, testLogger())
	assert.False(t, svc.Ready())

	_, err := svc.Predict(context.Background(), "1_DAIRY", time.Now(), "bottom_up")
	assert.ErrorIs(t, err, ErrArtifactsNotLoaded)

	_, err = svc.Hierarchy(context.Background())
	assert.ErrorIs(t, err, ErrArtifactsNotLoaded)
}

func TestForecastServiceAccuracy(t *testing.T) {
	cfg := writeArtifacts(t)
	svc := NewForecastService(cfg, nil, testLogger())

	_, err := svc.Accuracy(context.Background())
	assert.ErrorIs(t, err, ErrMetricsNotFound)

	saved := &validation.CVResult{RunID: "run-1", Model: "seasonal_naive_7", MeanRMSLE: 0.42}
	require.NoError(t, exporter.SaveMetrics(cfg.ReportPath(CVMetricsFilename), saved))

	got, err := svc.Accuracy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 0.42, got.MeanRMSLE)
}

func TestForecastServiceReloadPicksUpNewArtifacts(t *testing.T) {
	cfg := writeArtifacts(t)
	svc := NewForecastService(cfg, nil, testLogger())

	frame := reconcile.NewFrame("bottom_up")
	date := time.Date(2017, 9, 1, 0, 0, 0, 0, time.UTC)
	frame.Append("1_DAIRY", date, map[string]float64{"bottom_up": 55})
	require.NoError(t, exporter.NewCSVWriter().WriteForecastCSV(cfg.ReportPath(ForecastFilename), frame))

	require.NoError(t, svc.Reload(context.Background()))

	p, err := svc.Predict(context.Background(), "1_DAIRY", date, "bottom_up")
	require.NoError(t, err)
	assert.Equal(t, 55.0, p.Value)
	assert.Equal(t, []string{"bottom_up"}, svc.Methods())
}

func TestForecastServiceReloadRebuildsSeriesSet(t *testing.T) {
	cfg := writeArtifacts(t)
	svc := NewForecastService(cfg, nil, testLogger())

	date := time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC)
	_, err := svc.Predict(context.Background(), "3_DAIRY", date, "bottom_up")
	assert.ErrorIs(t, err, ErrSeriesNotFound)

	spec, err := hierarchy.BuildSpec([]int{1, 2, 3}, []string{"DAIRY", "GROCERY I"})
	require.NoError(t, err)
	require.NoError(t, hierarchy.SaveArtifacts(cfg.Paths.ModelsDir, spec, hierarchy.BuildSummingMatrix(spec)))

	frame := reconcile.NewFrame("bottom_up")
	frame.Append("3_DAIRY", date, map[string]float64{"bottom_up": 7})
	require.NoError(t, exporter.NewCSVWriter().WriteForecastCSV(cfg.ReportPath(ForecastFilename), frame))

	require.NoError(t, svc.Reload(context.Background()))

	p, err := svc.Predict(context.Background(), "3_DAIRY", date, "bottom_up")
	require.NoError(t, err)
	assert.Equal(t, 7.0, p.Value)

	_, err = svc.Predict(context.Background(), "9_DAIRY", date, "bottom_up")
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}
