package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sfcli/internal/features"
	"sfcli/internal/model"
)

// FoldMetrics is the metric summary for one evaluated fold
type FoldMetrics struct {
	Fold int `json:"fold"`
	Summary
}

// CVResult aggregates a walk-forward evaluation run. Aggregate metrics are
// pooled over the concatenation of every fold's predictions; MeanRMSLE and
// StdRMSLE summarize the per-fold primary metric instead.
type CVResult struct {
	RunID string `json:"run_id"`
	Model string `json:"model"`

	FoldMetrics []FoldMetrics `json:"fold_metrics"`
	Aggregate   Summary       `json:"aggregate"`
	MeanRMSLE   float64       `json:"mean_rmsle"`
	StdRMSLE    float64       `json:"std_rmsle"`

	NSplits      int      `json:"n_splits"`
	SkippedFolds int      `json:"skipped_folds"`
	Warnings     []string `json:"warnings,omitempty"`
}

// CVEvaluator drives a trainable model through walk-forward folds.
// Folds are independent, so they are trained and scored concurrently;
// aggregation waits for all of them.
type CVEvaluator struct {
	Splitter Splitter

	// Parallelism bounds concurrent fold evaluations. Zero means one
	// worker per CPU.
	Parallelism int
}

// Evaluate runs the model across every usable fold and aggregates the
// results. Skipped folds surface as warnings, not errors; a panel that
// yields no usable fold at all is an error.
func (e CVEvaluator) Evaluate(ctx context.Context, m model.Trainable, panel *features.Panel) (CVResult, error) {
	split, err := e.Splitter.Split(ctx, panel)
	if err != nil {
		return CVResult{}, fmt.Errorf("generate folds: %w", err)
	}
	if len(split.Folds) == 0 {
		return CVResult{}, fmt.Errorf("no usable folds: %d of %d candidates skipped for insufficient history",
			split.Skipped, e.Splitter.NSplits)
	}

	result := CVResult{
		RunID:        uuid.New().String(),
		Model:        m.Name(),
		NSplits:      len(split.Folds),
		SkippedFolds: split.Skipped,
	}
	if split.Skipped > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("skipped %d folds with insufficient history", split.Skipped))
	}

	logger := slog.Default()
	logger.InfoContext(ctx, "starting cross-validation",
		"run_id", result.RunID,
		"model", result.Model,
		"folds", len(split.Folds),
	)

	type foldOutcome struct {
		metrics   FoldMetrics
		actual    []float64
		predicted []float64
	}
	outcomes := make([]foldOutcome, len(split.Folds))

	workers := e.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, fold := range split.Folds {
		g.Go(func() error {
			predictor, err := m.Train(gctx, fold.Train, fold.Valid)
			if err != nil {
				return fmt.Errorf("fold %d: train: %w", fold.Index, err)
			}
			predicted, err := predictor.Predict(gctx, fold.Valid)
			if err != nil {
				return fmt.Errorf("fold %d: predict: %w", fold.Index, err)
			}

			actual := fold.Valid.Targets()
			summary, err := ComputeSummary(actual, predicted)
			if err != nil {
				return fmt.Errorf("fold %d: metrics: %w", fold.Index, err)
			}

			outcomes[i] = foldOutcome{
				metrics:   FoldMetrics{Fold: fold.Index, Summary: summary},
				actual:    actual,
				predicted: predicted,
			}

			logger.InfoContext(gctx, "evaluated fold",
				"run_id", result.RunID,
				"fold", fold.Index,
				"rmsle", summary.RMSLE,
				"rmse", summary.RMSE,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return CVResult{}, err
	}

	// Pool in fold order so results are reproducible regardless of
	// completion order
	var pooledActual, pooledPredicted []float64
	for _, o := range outcomes {
		result.FoldMetrics = append(result.FoldMetrics, o.metrics)
		pooledActual = append(pooledActual, o.actual...)
		pooledPredicted = append(pooledPredicted, o.predicted...)
	}

	result.Aggregate, err = ComputeSummary(pooledActual, pooledPredicted)
	if err != nil {
		return CVResult{}, fmt.Errorf("pooled metrics: %w", err)
	}
	result.MeanRMSLE, result.StdRMSLE = meanStdRMSLE(result.FoldMetrics)

	logger.InfoContext(ctx, "cross-validation complete",
		"run_id", result.RunID,
		"mean_rmsle", result.MeanRMSLE,
		"std_rmsle", result.StdRMSLE,
		"pooled_rmsle", result.Aggregate.RMSLE,
	)

	return result, nil
}

// meanStdRMSLE returns the mean and population standard deviation of the
// per-fold primary metric
func meanStdRMSLE(folds []FoldMetrics) (float64, float64) {
	n := float64(len(folds))
	sum := 0.0
	for _, f := range folds {
		sum += f.RMSLE
	}
	mean := sum / n

	ss := 0.0
	for _, f := range folds {
		d := f.RMSLE - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}
