package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"sfcli/internal/cache"
	"sfcli/internal/config"
	"sfcli/internal/exporter"
	"sfcli/internal/hierarchy"
	"sfcli/internal/reconcile"
	"sfcli/internal/validation"
)

// Artifact filenames the pipeline writes and this service reads
const (
	ForecastFilename  = "forecast.csv"
	CVMetricsFilename = "cv_metrics.json"
)

// Prediction is one served forecast value
type Prediction struct {
	SeriesID string  `json:"series_id"`
	Date     string  `json:"date"`
	Method   string  `json:"method"`
	Value    float64 `json:"value"`
	Cached   bool    `json:"cached"`
}

// HierarchySummary describes the loaded hierarchy for API consumers
type HierarchySummary struct {
	Stores    []int    `json:"stores"`
	Families  []string `json:"families"`
	NStores   int      `json:"n_stores"`
	NFamilies int      `json:"n_families"`
	NBottom   int      `json:"n_bottom"`
	NTotal    int      `json:"n_total"`
	Methods   []string `json:"methods"`
}

// ForecastService serves reconciled forecasts from pipeline artifacts.
// Artifacts are held in memory behind a RWMutex so Reload can swap them
// while requests are in flight.
type ForecastService struct {
	cfg    *config.Config
	cache  *cache.PredictionCache
	logger *slog.Logger

	mu        sync.RWMutex
	spec      *hierarchy.Spec
	forecasts *reconcile.Frame
	series    map[string]struct{}
}

// NewForecastService creates the service and loads artifacts if present.
// A missing forecast artifact is not fatal; the service starts empty and
// reports not-ready until the pipeline produces one.
func NewForecastService(cfg *config.Config, predCache *cache.PredictionCache, logger *slog.Logger) *ForecastService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ForecastService{
		cfg:    cfg,
		cache:  predCache,
		logger: logger.With(slog.String("service", "forecast")),
	}

	if err := s.Reload(context.Background()); err != nil {
		s.logger.Warn("starting without forecast artifacts",
			slog.String("error", err.Error()))
	}
	return s
}

// Reload re-reads the hierarchy and forecast artifacts from disk
func (s *ForecastService) Reload(ctx context.Context) error {
	spec, _, err := hierarchy.LoadArtifacts(s.cfg.Paths.ModelsDir)
	if err != nil {
		return fmt.Errorf("load hierarchy artifacts: %w", err)
	}

	frame, err := exporter.LoadForecastCSV(s.cfg.ReportPath(ForecastFilename))
	if err != nil {
		return fmt.Errorf("load forecast artifact: %w", err)
	}

	series := make(map[string]struct{}, spec.NTotal())
	for _, id := range spec.AllIDs() {
		series[id] = struct{}{}
	}

	s.mu.Lock()
	s.spec = spec
	s.forecasts = frame
	s.series = series
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "forecast artifacts loaded",
		slog.Int("n_bottom", spec.NBottom),
		slog.Int("rows", len(frame.Rows)),
		slog.Any("methods", frame.Columns))
	return nil
}

// Ready reports whether forecast artifacts are loaded
func (s *ForecastService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec != nil && s.forecasts != nil
}

// Methods returns the reconciliation methods available in the loaded
// artifacts
func (s *ForecastService) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forecasts == nil {
		return nil
	}
	out := make([]string, len(s.forecasts.Columns))
	copy(out, s.forecasts.Columns)
	return out
}

// Predict serves one reconciled forecast value, consulting the prediction
// cache before the in-memory frame
func (s *ForecastService) Predict(ctx context.Context, seriesID string, date time.Time, method string) (*Prediction, error) {
	s.mu.RLock()
	spec := s.spec
	frame := s.forecasts
	series := s.series
	s.mu.RUnlock()

	if spec == nil || frame == nil {
		return nil, ErrArtifactsNotLoaded
	}
	if _, ok := series[seriesID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, seriesID)
	}
	if !frame.HasColumn(method) {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}

	dateStr := date.Format("2006-01-02")
	key := cache.Key(seriesID, dateStr, method)
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key); err == nil {
			return &Prediction{
				SeriesID: hit.SeriesID,
				Date:     hit.Date,
				Method:   hit.Method,
				Value:    hit.Value,
				Cached:   true,
			}, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			s.logger.WarnContext(ctx, "cache lookup failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}

	value, ok := frame.Value(method, seriesID, date.UTC())
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrDateNotForecast, seriesID, dateStr)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, &cache.Prediction{
			SeriesID: seriesID,
			Date:     dateStr,
			Method:   method,
			Value:    value,
		}); err != nil {
			s.logger.WarnContext(ctx, "cache store failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}

	return &Prediction{
		SeriesID: seriesID,
		Date:     dateStr,
		Method:   method,
		Value:    value,
	}, nil
}

// Hierarchy summarizes the loaded hierarchy
func (s *ForecastService) Hierarchy(ctx context.Context) (*HierarchySummary, error) {
	s.mu.RLock()
	spec := s.spec
	frame := s.forecasts
	s.mu.RUnlock()

	if spec == nil {
		return nil, ErrArtifactsNotLoaded
	}

	summary := &HierarchySummary{
		Stores:    spec.Stores,
		Families:  spec.Families,
		NStores:   spec.NStores,
		NFamilies: spec.NFamilies,
		NBottom:   spec.NBottom,
		NTotal:    spec.NTotal(),
	}
	if frame != nil {
		summary.Methods = frame.Columns
	}
	return summary, nil
}

// Accuracy loads the latest cross-validation metrics artifact
func (s *ForecastService) Accuracy(ctx context.Context) (*validation.CVResult, error) {
	path := s.cfg.ReportPath(CVMetricsFilename)
	result, err := exporter.LoadCVResult(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMetricsNotFound
		}
		return nil, fmt.Errorf("load cv metrics: %w", err)
	}
	return result, nil
}
