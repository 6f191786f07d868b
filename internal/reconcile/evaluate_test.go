package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcli/internal/hierarchy"
)

func TestEvaluatePerMethodAndLevel(t *testing.T) {
	spec, _ := testHierarchy(t)

	reconciled := coherentFrame(t, string(MethodBottomUp), []float64{10, 20, 30, 40})

	actuals := NewFrame("y")
	for _, row := range coherentFrame(t, "y", []float64{12, 18, 33, 37}).Rows {
		actuals.Rows = append(actuals.Rows, row)
	}

	results, err := Evaluate(spec, reconciled, actuals, "y")
	require.NoError(t, err)

	// One result per level for the single method
	require.Len(t, results, 4)
	byLevel := make(map[hierarchy.Level]LevelMetrics)
	for _, r := range results {
		assert.Equal(t, string(MethodBottomUp), r.Method)
		byLevel[r.Level] = r
	}

	// Totals match exactly, so Total-level error is zero
	assert.Zero(t, byLevel[hierarchy.LevelTotal].RMSE)
	assert.Equal(t, 1, byLevel[hierarchy.LevelTotal].N)
	assert.Equal(t, 4, byLevel[hierarchy.LevelBottom].N)
	assert.InDelta(t, 2.5, byLevel[hierarchy.LevelBottom].MAE, 1e-9)
}

func TestEvaluateNoOverlap(t *testing.T) {
	spec, _ := testHierarchy(t)
	reconciled := coherentFrame(t, "m", []float64{1, 2, 3, 4})

	actuals := NewFrame("y")
	actuals.Append("unrelated", day(1), map[string]float64{"y": 1})

	_, err := Evaluate(spec, reconciled, actuals, "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no overlap")
}

func selectionFixture() []LevelMetrics {
	return []LevelMetrics{
		{Method: string(MethodBottomUp), Level: hierarchy.LevelTotal, RMSE: 100},
		{Method: string(MethodTopDown), Level: hierarchy.LevelTotal, RMSE: 150},
		{Method: string(MethodMinTraceShrink), Level: hierarchy.LevelTotal, RMSE: 80},
	}
}

func TestSelectBestLowestAggregate(t *testing.T) {
	best, err := SelectBest(selectionFixture(), "rmse", nil)
	require.NoError(t, err)
	assert.Equal(t, string(MethodMinTraceShrink), best)
}

func TestSelectBestTieFirstSeen(t *testing.T) {
	results := []LevelMetrics{
		{Method: "a", Level: hierarchy.LevelTotal, RMSE: 50},
		{Method: "b", Level: hierarchy.LevelTotal, RMSE: 50},
	}
	best, err := SelectBest(results, "rmse", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", best)
}

func TestSelectBestLevelFilterChangesWinner(t *testing.T) {
	results := []LevelMetrics{
		{Method: "a", Level: hierarchy.LevelTotal, RMSE: 10},
		{Method: "a", Level: hierarchy.LevelBottom, RMSE: 500},
		{Method: "b", Level: hierarchy.LevelTotal, RMSE: 20},
		{Method: "b", Level: hierarchy.LevelBottom, RMSE: 30},
	}

	// Aggregated across levels, b wins; at the Total level alone, a wins
	best, err := SelectBest(results, "rmse", nil)
	require.NoError(t, err)
	assert.Equal(t, "b", best)

	level := hierarchy.LevelTotal
	best, err = SelectBest(results, "rmse", &level)
	require.NoError(t, err)
	assert.Equal(t, "a", best)
}

func TestSelectBestUnknownMetric(t *testing.T) {
	_, err := SelectBest(selectionFixture(), "accuracy", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown selection metric")
}

func TestSelectBestEmpty(t *testing.T) {
	_, err := SelectBest(nil, "rmse", nil)
	require.Error(t, err)
}

func TestSelectBestNoResultsAtLevel(t *testing.T) {
	level := hierarchy.LevelFamily
	_, err := SelectBest(selectionFixture(), "rmse", &level)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requested level")
}
