package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"sfcli/internal/config"
)

// Builder derives the model feature matrix from a preprocessed panel.
//
// All trailing statistics are shifted so the value attached to day t only
// uses observations strictly before t. Rows whose maximum-horizon lag is
// undefined are dropped at the end of the build.
type Builder struct {
	set     config.FeatureSet
	horizon int
	logger  *slog.Logger
}

// NewBuilder returns a builder for the given feature set and forecast
// horizon. The horizon is appended to the configured lags and windows so
// the matrix always carries the lag the model needs to predict that far out.
func NewBuilder(set config.FeatureSet, horizon int) (*Builder, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("forecast horizon must be positive, got %d", horizon)
	}
	return &Builder{
		set:     set.WithHorizon(horizon),
		horizon: horizon,
		logger:  slog.Default(),
	}, nil
}

// Build sorts the panel, attaches calendar, promotion, lag and rolling
// features, then drops the rows that cannot support the configured horizon.
// The input panel is modified in place and returned.
func (b *Builder) Build(ctx context.Context, panel *Panel) (*Panel, error) {
	if len(panel.Rows) == 0 {
		return nil, fmt.Errorf("cannot build features from an empty panel")
	}

	panel.SortByGroupDate()
	panel.FeatureColumns = nil

	b.buildDateFeatures(panel)
	b.buildPromotionFeatures(ctx, panel)

	spans := panel.groupSpans()
	b.buildLagFeatures(panel, spans)
	b.buildRollingFeatures(panel, spans)

	dropped := b.dropUnsupportedRows(panel)

	b.logger.InfoContext(ctx, "built feature matrix",
		"rows", len(panel.Rows),
		"dropped", dropped,
		"series", len(spans),
		"features", len(panel.FeatureColumns),
		"horizon", b.horizon,
	)

	if len(panel.Rows) == 0 {
		return nil, fmt.Errorf("no rows remain after dropping the first %d days of each series", b.horizon)
	}
	return panel, nil
}

func (b *Builder) buildDateFeatures(panel *Panel) {
	for i := range panel.Rows {
		for name, v := range dateFeatures(panel.Rows[i].Date) {
			panel.Rows[i].SetFeature(name, v)
		}
	}
	panel.FeatureColumns = append(panel.FeatureColumns, DateFeatureColumns...)
}

// buildPromotionFeatures attaches the trailing 7-day promotion count.
// A panel without the promotion column skips the feature with a warning
// instead of failing.
func (b *Builder) buildPromotionFeatures(ctx context.Context, panel *Panel) {
	promoCol := b.set.PromotionColumn
	if promoCol == "" || !panel.HasAuxColumn(promoCol) {
		b.logger.WarnContext(ctx, "promotion column absent, skipping promotion features",
			"column", promoCol,
		)
		return
	}

	const window = 7
	for _, span := range panel.groupSpans() {
		for i := span.start; i < span.end; i++ {
			// Trailing sum over the window ending yesterday. The sum is
			// zero until a full window of prior days exists, matching a
			// shifted rolling sum with null fill.
			if i-span.start < window {
				panel.Rows[i].SetFeature("promo_rolling_7", 0)
				continue
			}
			sum := 0.0
			for j := i - window; j < i; j++ {
				v := panel.Rows[j].AuxValue(promoCol)
				if !math.IsNaN(v) {
					sum += v
				}
			}
			panel.Rows[i].SetFeature("promo_rolling_7", sum)
		}
	}
	panel.FeatureColumns = append(panel.FeatureColumns, "promo_rolling_7")
}

func (b *Builder) buildLagFeatures(panel *Panel, spans []groupSpan) {
	target := b.set.TargetColumn
	for _, lag := range b.set.Lags {
		name := fmt.Sprintf("%s_lag_%d", target, lag)
		for _, span := range spans {
			for i := span.start; i < span.end; i++ {
				if i-span.start < lag {
					panel.Rows[i].SetFeature(name, math.NaN())
					continue
				}
				panel.Rows[i].SetFeature(name, panel.Rows[i-lag].Target)
			}
		}
		panel.FeatureColumns = append(panel.FeatureColumns, name)
	}
}

// buildRollingFeatures computes trailing mean and sample standard deviation
// over the target, shifted by one day. A statistic is defined only once its
// full window of prior observations exists.
func (b *Builder) buildRollingFeatures(panel *Panel, spans []groupSpan) {
	target := b.set.TargetColumn
	for _, window := range b.set.Windows {
		meanName := fmt.Sprintf("%s_rolling_mean_%d", target, window)
		stdName := fmt.Sprintf("%s_rolling_std_%d", target, window)

		for _, span := range spans {
			for i := span.start; i < span.end; i++ {
				// The window covers [i-window, i), all strictly before i
				if i-span.start < window {
					panel.Rows[i].SetFeature(meanName, math.NaN())
					panel.Rows[i].SetFeature(stdName, math.NaN())
					continue
				}
				mean, std := meanStd(panel.Rows[i-window:i])
				panel.Rows[i].SetFeature(meanName, mean)
				panel.Rows[i].SetFeature(stdName, std)
			}
		}
		panel.FeatureColumns = append(panel.FeatureColumns, meanName, stdName)
	}
}

// meanStd returns the mean and sample standard deviation of the targets in
// the given rows. Std is NaN for fewer than two observations.
func meanStd(rows []Row) (float64, float64) {
	n := float64(len(rows))
	sum := 0.0
	for i := range rows {
		sum += rows[i].Target
	}
	mean := sum / n

	if len(rows) < 2 {
		return mean, math.NaN()
	}
	ss := 0.0
	for i := range rows {
		d := rows[i].Target - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// dropUnsupportedRows removes rows whose horizon lag is undefined and
// returns the number removed
func (b *Builder) dropUnsupportedRows(panel *Panel) int {
	name := fmt.Sprintf("%s_lag_%d", b.set.TargetColumn, b.horizon)
	kept := panel.Rows[:0]
	dropped := 0
	for i := range panel.Rows {
		if math.IsNaN(panel.Rows[i].Feature(name)) {
			dropped++
			continue
		}
		kept = append(kept, panel.Rows[i])
	}
	panel.Rows = kept
	return dropped
}
