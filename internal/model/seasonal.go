package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"sfcli/internal/features"
)

// DefaultSeasonLength is the weekly cycle of daily retail data
const DefaultSeasonLength = 7

// SeasonalNaive predicts each series' value from one season earlier. It
// reads the corresponding lag feature when the feature builder produced
// one, and falls back to the series' training mean for rows where the lag
// is undefined or for series unseen in training.
type SeasonalNaive struct {
	SeasonLength int
	TargetColumn string
}

// NewSeasonalNaive returns the weekly baseline over the given target column
func NewSeasonalNaive(targetColumn string) *SeasonalNaive {
	return &SeasonalNaive{SeasonLength: DefaultSeasonLength, TargetColumn: targetColumn}
}

// Name implements Trainable
func (m *SeasonalNaive) Name() string {
	return fmt.Sprintf("seasonal_naive_%d", m.SeasonLength)
}

// Train records per-series training means as the fallback level. The
// validation panel is unused.
func (m *SeasonalNaive) Train(ctx context.Context, train, _ *features.Panel) (Predictor, error) {
	if len(train.Rows) == 0 {
		return nil, fmt.Errorf("seasonal naive requires training rows")
	}

	sums := make(map[seriesKey]float64)
	counts := make(map[seriesKey]int)
	grand := 0.0
	for i := range train.Rows {
		key := seriesKey{store: train.Rows[i].StoreNbr, family: train.Rows[i].Family}
		sums[key] += train.Rows[i].Target
		counts[key]++
		grand += train.Rows[i].Target
	}

	means := make(map[seriesKey]float64, len(sums))
	for key, sum := range sums {
		means[key] = sum / float64(counts[key])
	}

	slog.InfoContext(ctx, "trained seasonal naive baseline",
		"model", m.Name(),
		"series", len(means),
		"rows", len(train.Rows),
	)

	return &seasonalNaivePredictor{
		lagFeature: fmt.Sprintf("%s_lag_%d", m.TargetColumn, m.SeasonLength),
		means:      means,
		grandMean:  grand / float64(len(train.Rows)),
	}, nil
}

type seriesKey struct {
	store  int
	family string
}

type seasonalNaivePredictor struct {
	lagFeature string
	means      map[seriesKey]float64
	grandMean  float64
}

// Predict implements Predictor
func (p *seasonalNaivePredictor) Predict(_ context.Context, panel *features.Panel) ([]float64, error) {
	if len(panel.Rows) == 0 {
		return nil, fmt.Errorf("cannot predict over an empty panel")
	}

	out := make([]float64, len(panel.Rows))
	for i := range panel.Rows {
		row := &panel.Rows[i]
		if v := row.Feature(p.lagFeature); !math.IsNaN(v) {
			out[i] = v
			continue
		}
		key := seriesKey{store: row.StoreNbr, family: row.Family}
		if mean, ok := p.means[key]; ok {
			out[i] = mean
			continue
		}
		out[i] = p.grandMean
	}
	return out, nil
}
