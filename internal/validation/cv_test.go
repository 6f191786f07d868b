package validation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcli/internal/features"
	"sfcli/internal/model"
)

// offsetModel predicts actual plus a fixed offset, so its RMSE per fold is
// exactly the offset
type offsetModel struct {
	offset   float64
	trainErr error
}

func (m *offsetModel) Name() string { return "offset" }

func (m *offsetModel) Train(_ context.Context, train, _ *features.Panel) (model.Predictor, error) {
	if m.trainErr != nil {
		return nil, m.trainErr
	}
	if len(train.Rows) == 0 {
		return nil, fmt.Errorf("empty training panel")
	}
	return &offsetPredictor{offset: m.offset}, nil
}

type offsetPredictor struct{ offset float64 }

func (p *offsetPredictor) Predict(_ context.Context, panel *features.Panel) ([]float64, error) {
	out := make([]float64, len(panel.Rows))
	for i := range panel.Rows {
		out[i] = panel.Rows[i].Target + p.offset
	}
	return out, nil
}

func TestCVEvaluatorAggregates(t *testing.T) {
	panel := dailyPanel(t, 600)
	e := CVEvaluator{
		Splitter: Splitter{TrainDays: 365, ValidDays: 90, NSplits: 3, StepDays: 30},
	}

	result, err := e.Evaluate(context.Background(), &offsetModel{offset: 10}, panel)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "offset", result.Model)
	assert.Equal(t, 3, result.NSplits)
	assert.Zero(t, result.SkippedFolds)
	assert.Empty(t, result.Warnings)

	require.Len(t, result.FoldMetrics, 3)
	for _, fm := range result.FoldMetrics {
		assert.InDelta(t, 10.0, fm.RMSE, 1e-9)
		assert.InDelta(t, 10.0, fm.MAE, 1e-9)
		assert.Equal(t, 91, fm.N)
	}

	// Fold order in the result matches generation order
	assert.Equal(t, 0, result.FoldMetrics[0].Fold)
	assert.Equal(t, 2, result.FoldMetrics[2].Fold)

	// Pooled metrics cover every fold's rows
	assert.Equal(t, 273, result.Aggregate.N)
	assert.InDelta(t, 10.0, result.Aggregate.RMSE, 1e-9)

	assert.Greater(t, result.MeanRMSLE, 0.0)
	assert.GreaterOrEqual(t, result.StdRMSLE, 0.0)
}

func TestCVEvaluatorPerfectModel(t *testing.T) {
	panel := dailyPanel(t, 600)
	e := CVEvaluator{
		Splitter:    Splitter{TrainDays: 365, ValidDays: 90, NSplits: 2, StepDays: 30},
		Parallelism: 1,
	}

	result, err := e.Evaluate(context.Background(), &offsetModel{offset: 0}, panel)
	require.NoError(t, err)

	assert.Zero(t, result.MeanRMSLE)
	assert.Zero(t, result.StdRMSLE)
	assert.Zero(t, result.Aggregate.RMSLE)
}

func TestCVEvaluatorReportsSkippedFolds(t *testing.T) {
	panel := dailyPanel(t, 500)
	e := CVEvaluator{
		Splitter: Splitter{TrainDays: 365, ValidDays: 90, NSplits: 3, StepDays: 30},
	}

	result, err := e.Evaluate(context.Background(), &offsetModel{offset: 1}, panel)
	require.NoError(t, err)

	assert.Equal(t, 2, result.NSplits)
	assert.Equal(t, 1, result.SkippedFolds)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "insufficient history")
}

func TestCVEvaluatorNoUsableFolds(t *testing.T) {
	panel := dailyPanel(t, 100)
	e := CVEvaluator{
		Splitter: Splitter{TrainDays: 365, ValidDays: 90, NSplits: 2, StepDays: 30},
	}

	_, err := e.Evaluate(context.Background(), &offsetModel{}, panel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable folds")
}

func TestCVEvaluatorPropagatesTrainError(t *testing.T) {
	panel := dailyPanel(t, 600)
	e := CVEvaluator{
		Splitter: Splitter{TrainDays: 365, ValidDays: 90, NSplits: 2, StepDays: 30},
	}

	_, err := e.Evaluate(context.Background(), &offsetModel{trainErr: fmt.Errorf("boom")}, panel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
