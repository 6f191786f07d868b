package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcli/internal/config"
	"sfcli/internal/features"
	"sfcli/internal/hierarchy"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Paths.RawDir = t.TempDir()
	cfg.Paths.ModelsDir = t.TempDir()
	cfg.Paths.ReportsDir = t.TempDir()
	cfg.Forecast.Horizon = 7
	cfg.Forecast.TrainDays = 60
	cfg.Forecast.ValidDays = 30
	cfg.Forecast.GapDays = 0
	cfg.Forecast.CVSplits = 2
	cfg.Forecast.StepDays = 30
	cfg.Forecast.RMSLEThreshold = 0.5
	cfg.Forecast.ShrinkageLambda = 0.1
	cfg.Forecast.ProportionDays = 30
	return cfg
}

// syntheticPanel builds 2 stores x 2 families over the given number of
// days with deterministic positive sales
func syntheticPanel(days int) *features.Panel {
	panel := &features.Panel{}
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, store := range []int{1, 2} {
		for _, family := range []string{"DAIRY", "GROCERY I"} {
			for d := 0; d < days; d++ {
				date := start.AddDate(0, 0, d)
				target := float64(10*store + d%7)
				row := features.Row{
					StoreNbr: store,
					Family:   family,
					Date:     date,
					Target:   target,
				}
				if d >= 7 {
					row.SetFeature("sales_lag_7", float64(10*store+(d-7)%7))
				} else {
					row.SetFeature("sales_lag_7", math.NaN())
				}
				panel.Rows = append(panel.Rows, row)
			}
		}
	}
	panel.FeatureColumns = []string{"sales_lag_7"}
	return panel
}

func TestHierarchyStep(t *testing.T) {
	cfg := testConfig(t)
	state := NewRunState()
	state.Panel = syntheticPanel(30)

	step := &HierarchyStep{cfg: cfg}
	require.NoError(t, step.Validate(state))
	require.NoError(t, step.Execute(context.Background(), state))

	require.NotNil(t, state.Spec)
	assert.Equal(t, []int{1, 2}, state.Spec.Stores)
	assert.Equal(t, 4, state.Spec.NBottom)

	spec, _, err := hierarchy.LoadArtifacts(cfg.Paths.ModelsDir)
	require.NoError(t, err)
	assert.Equal(t, state.Spec.BottomIDs, spec.BottomIDs)
}

func TestCrossValidationStep(t *testing.T) {
	cfg := testConfig(t)
	state := NewRunState()
	state.FeaturePanel = syntheticPanel(200)

	step := &CrossValidationStep{cfg: cfg, logger: testManagerLogger()}
	require.NoError(t, step.Validate(state))
	require.NoError(t, step.Execute(context.Background(), state))

	require.NotNil(t, state.CVResult)
	assert.Equal(t, "seasonal_naive_7", state.CVResult.Model)
	assert.NotEmpty(t, state.CVResult.FoldMetrics)

	_, err := os.Stat(filepath.Join(cfg.Paths.ReportsDir, "cv_metrics.json"))
	assert.NoError(t, err)
}

func TestReconcileStep(t *testing.T) {
	cfg := testConfig(t)
	state := NewRunState()
	state.Panel = syntheticPanel(200)
	state.FeaturePanel = state.Panel

	hierarchyStep := &HierarchyStep{cfg: cfg}
	require.NoError(t, hierarchyStep.Execute(context.Background(), state))

	step := &ReconcileStep{cfg: cfg, logger: testManagerLogger()}
	require.NoError(t, step.Validate(state))
	require.NoError(t, step.Execute(context.Background(), state))

	require.NotNil(t, state.Reconciled)
	assert.Len(t, state.Reconciled.Columns, 4)
	assert.NotEmpty(t, state.Evaluation)
	assert.NotEmpty(t, state.BestMethod)

	// Every holdout date carries a row per hierarchy node
	dates := state.Reconciled.Dates()
	assert.Len(t, dates, cfg.Forecast.ValidDays)
	assert.Len(t, state.Reconciled.Rows, cfg.Forecast.ValidDays*state.Spec.NTotal())

	// Methods are scored at every hierarchy level, not just the bottom
	scored := make(map[hierarchy.Level]bool)
	for _, m := range state.Evaluation {
		scored[m.Level] = true
	}
	for _, level := range []hierarchy.Level{
		hierarchy.LevelTotal, hierarchy.LevelStore, hierarchy.LevelFamily, hierarchy.LevelBottom,
	} {
		assert.True(t, scored[level], string(level))
	}
}

func TestReconcileHistoryEndsBeforeHoldout(t *testing.T) {
	panel := syntheticPanel(200)
	minDate, maxDate, err := panel.DateRange()
	require.NoError(t, err)

	validStart := maxDate.AddDate(0, 0, -(30 - 1))
	train := panel.FilterDateRange(minDate, validStart, false)

	history := buildHistoryFrame(train)
	require.NotEmpty(t, history.Rows)
	for _, row := range history.Rows {
		assert.True(t, row.Date.Before(validStart),
			"history leaks holdout date %s", row.Date.Format("2006-01-02"))
	}
}

func TestBuildActualsFrameCoversAllLevels(t *testing.T) {
	panel := syntheticPanel(10)
	spec, err := hierarchy.BuildSpec([]int{1, 2}, []string{"DAIRY", "GROCERY I"})
	require.NoError(t, err)

	actuals := buildActualsFrame(spec, panel)

	date := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	total, ok := actuals.Value("actual", "Total", date)
	require.True(t, ok)
	// 2 families x (10 + 20) on day zero
	assert.Equal(t, 60.0, total)

	store, ok := actuals.Value("actual", "Store_1", date)
	require.True(t, ok)
	assert.Equal(t, 20.0, store)

	family, ok := actuals.Value("actual", "Family_DAIRY", date)
	require.True(t, ok)
	assert.Equal(t, 30.0, family)
}

func TestReportStep(t *testing.T) {
	cfg := testConfig(t)
	state := NewRunState()
	state.Panel = syntheticPanel(200)
	state.FeaturePanel = state.Panel

	require.NoError(t, (&HierarchyStep{cfg: cfg}).Execute(context.Background(), state))
	require.NoError(t, (&CrossValidationStep{cfg: cfg, logger: testManagerLogger()}).Execute(context.Background(), state))
	require.NoError(t, (&ReconcileStep{cfg: cfg, logger: testManagerLogger()}).Execute(context.Background(), state))

	step := &ReportStep{cfg: cfg}
	require.NoError(t, step.Validate(state))
	require.NoError(t, step.Execute(context.Background(), state))

	for _, name := range []string{"forecast.csv", "evaluation.csv", "evaluation.xlsx"} {
		_, err := os.Stat(filepath.Join(cfg.Paths.ReportsDir, name))
		assert.NoError(t, err, name)
	}
}

func TestStepValidation(t *testing.T) {
	cfg := testConfig(t)
	empty := NewRunState()

	tests := []struct {
		name string
		step Step
	}{
		{"features requires panel", &FeatureStep{cfg: cfg}},
		{"hierarchy requires panel", &HierarchyStep{cfg: cfg}},
		{"cv requires feature panel", &CrossValidationStep{cfg: cfg}},
		{"reconcile requires hierarchy", &ReconcileStep{cfg: cfg}},
		{"report requires results", &ReportStep{cfg: cfg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.step.Validate(empty))
		})
	}
}

func TestDefaultRegistryOrder(t *testing.T) {
	registry, err := DefaultRegistry(testConfig(t), testManagerLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{
		StepPreprocess, StepFeatures, StepHierarchy, StepCV, StepReconcile, StepReport,
	}, registry.IDs())
}
