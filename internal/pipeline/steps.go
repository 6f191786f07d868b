package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"sfcli/internal/config"
	"sfcli/internal/exporter"
	"sfcli/internal/features"
	"sfcli/internal/hierarchy"
	"sfcli/internal/model"
	"sfcli/internal/reconcile"
	"sfcli/internal/services"
	"sfcli/internal/validation"
)

// Step IDs in execution order
const (
	StepPreprocess = "preprocess"
	StepFeatures   = "features"
	StepHierarchy  = "hierarchy"
	StepCV         = "cross_validation"
	StepReconcile  = "reconcile"
	StepReport     = "report"
)

// baseColumn names the unreconciled forecast column, actualColumn the
// observed sales used for proportions, variances and evaluation
const (
	baseColumn   = "base"
	actualColumn = "actual"
)

// DefaultRegistry wires the full batch pipeline in order
func DefaultRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry()
	steps := []Step{
		&PreprocessStep{cfg: cfg},
		&FeatureStep{cfg: cfg},
		&HierarchyStep{cfg: cfg},
		&CrossValidationStep{cfg: cfg, logger: logger},
		&ReconcileStep{cfg: cfg, logger: logger},
		&ReportStep{cfg: cfg},
	}
	for _, s := range steps {
		if err := registry.Register(s); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// PreprocessStep loads and cleans the raw CSV inputs
type PreprocessStep struct {
	cfg *config.Config
}

func (s *PreprocessStep) ID() string   { return StepPreprocess }
func (s *PreprocessStep) Name() string { return "Preprocess raw data" }

func (s *PreprocessStep) Validate(state *RunState) error {
	if s.cfg.Paths.RawDir == "" {
		return fmt.Errorf("raw data directory not configured")
	}
	v := validation.NewFileValidator(nil)
	if err := v.ValidateInputDirectory(s.cfg.Paths.RawDir, "*.csv"); err != nil {
		return err
	}
	return v.ValidateCSVFile(filepath.Join(s.cfg.Paths.RawDir, features.TrainFile))
}

func (s *PreprocessStep) Execute(ctx context.Context, state *RunState) error {
	panel, err := features.Preprocess(ctx, s.cfg.Paths.RawDir)
	if err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	state.Panel = panel
	return nil
}

// FeatureStep builds the leakage-safe feature columns
type FeatureStep struct {
	cfg *config.Config
}

func (s *FeatureStep) ID() string   { return StepFeatures }
func (s *FeatureStep) Name() string { return "Build features" }

func (s *FeatureStep) Validate(state *RunState) error {
	if state.Panel == nil {
		return fmt.Errorf("no preprocessed panel available")
	}
	return nil
}

func (s *FeatureStep) Execute(ctx context.Context, state *RunState) error {
	set, err := config.LoadFeatureSet(s.cfg.Forecast.FeatureSetFile)
	if err != nil {
		return fmt.Errorf("load feature set: %w", err)
	}
	builder, err := features.NewBuilder(set, s.cfg.Forecast.Horizon)
	if err != nil {
		return err
	}
	panel, err := builder.Build(ctx, state.Panel)
	if err != nil {
		return fmt.Errorf("build features: %w", err)
	}
	state.FeaturePanel = panel
	return nil
}

// HierarchyStep derives the hierarchy from the panel and persists its
// artifacts
type HierarchyStep struct {
	cfg *config.Config
}

func (s *HierarchyStep) ID() string   { return StepHierarchy }
func (s *HierarchyStep) Name() string { return "Build hierarchy" }

func (s *HierarchyStep) Validate(state *RunState) error {
	if state.Panel == nil {
		return fmt.Errorf("no preprocessed panel available")
	}
	return nil
}

func (s *HierarchyStep) Execute(ctx context.Context, state *RunState) error {
	stores, families := panelDimensions(state.Panel)
	spec, err := hierarchy.BuildSpec(stores, families)
	if err != nil {
		return fmt.Errorf("build hierarchy spec: %w", err)
	}

	m := hierarchy.BuildSummingMatrix(spec)
	if err := hierarchy.ValidateSummingMatrix(m, spec); err != nil {
		return fmt.Errorf("summing matrix invalid: %w", err)
	}
	if err := hierarchy.SaveArtifacts(s.cfg.Paths.ModelsDir, spec, m); err != nil {
		return fmt.Errorf("save hierarchy artifacts: %w", err)
	}

	state.Spec = spec
	state.Matrix = m
	return nil
}

func panelDimensions(panel *features.Panel) ([]int, []string) {
	storeSet := make(map[int]struct{})
	familySet := make(map[string]struct{})
	for _, row := range panel.Rows {
		storeSet[row.StoreNbr] = struct{}{}
		familySet[row.Family] = struct{}{}
	}
	stores := make([]int, 0, len(storeSet))
	for s := range storeSet {
		stores = append(stores, s)
	}
	families := make([]string, 0, len(familySet))
	for f := range familySet {
		families = append(families, f)
	}
	sort.Ints(stores)
	sort.Strings(families)
	return stores, families
}

// CrossValidationStep runs walk-forward cross-validation of the baseline
// model and persists the metrics artifact
type CrossValidationStep struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (s *CrossValidationStep) ID() string   { return StepCV }
func (s *CrossValidationStep) Name() string { return "Cross-validate baseline" }

func (s *CrossValidationStep) Validate(state *RunState) error {
	if state.FeaturePanel == nil {
		return fmt.Errorf("no feature panel available")
	}
	return nil
}

func (s *CrossValidationStep) Execute(ctx context.Context, state *RunState) error {
	set, err := config.LoadFeatureSet(s.cfg.Forecast.FeatureSetFile)
	if err != nil {
		return fmt.Errorf("load feature set: %w", err)
	}

	evaluator := validation.CVEvaluator{
		Splitter: validation.Splitter{
			TrainDays: s.cfg.Forecast.TrainDays,
			ValidDays: s.cfg.Forecast.ValidDays,
			GapDays:   s.cfg.Forecast.GapDays,
			NSplits:   s.cfg.Forecast.CVSplits,
			StepDays:  s.cfg.Forecast.StepDays,
		},
	}

	result, err := evaluator.Evaluate(ctx, model.NewSeasonalNaive(set.TargetColumn), state.FeaturePanel)
	if err != nil {
		return fmt.Errorf("cross-validation: %w", err)
	}

	if s.logger != nil && result.MeanRMSLE > s.cfg.Forecast.RMSLEThreshold {
		s.logger.WarnContext(ctx, "baseline RMSLE above threshold",
			slog.Float64("mean_rmsle", result.MeanRMSLE),
			slog.Float64("threshold", s.cfg.Forecast.RMSLEThreshold))
	}

	if err := exporter.SaveMetrics(s.cfg.ReportPath(services.CVMetricsFilename), &result); err != nil {
		return fmt.Errorf("save cv metrics: %w", err)
	}

	state.CVResult = &result
	return nil
}

// ReconcileStep forecasts the holdout window, reconciles across the
// hierarchy with every method, and evaluates coherence and accuracy
type ReconcileStep struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (s *ReconcileStep) ID() string   { return StepReconcile }
func (s *ReconcileStep) Name() string { return "Reconcile forecasts" }

func (s *ReconcileStep) Validate(state *RunState) error {
	if state.FeaturePanel == nil {
		return fmt.Errorf("no feature panel available")
	}
	if state.Spec == nil || state.Matrix == nil {
		return fmt.Errorf("no hierarchy available")
	}
	return nil
}

func (s *ReconcileStep) Execute(ctx context.Context, state *RunState) error {
	set, err := config.LoadFeatureSet(s.cfg.Forecast.FeatureSetFile)
	if err != nil {
		return fmt.Errorf("load feature set: %w", err)
	}

	panel := state.FeaturePanel
	minDate, maxDate, err := panel.DateRange()
	if err != nil {
		return err
	}
	validStart := maxDate.AddDate(0, 0, -(s.cfg.Forecast.ValidDays - 1))
	if !validStart.After(minDate) {
		return fmt.Errorf("panel too short for a %d day holdout", s.cfg.Forecast.ValidDays)
	}

	train := panel.FilterDateRange(minDate, validStart, false)
	holdout := panel.FilterDateRange(validStart, maxDate, true)
	if len(train.Rows) == 0 || len(holdout.Rows) == 0 {
		return fmt.Errorf("empty train or holdout window")
	}

	m := model.NewSeasonalNaive(set.TargetColumn)
	predictor, err := m.Train(ctx, train, nil)
	if err != nil {
		return fmt.Errorf("train baseline: %w", err)
	}
	predictions, err := predictor.Predict(ctx, holdout)
	if err != nil {
		return fmt.Errorf("predict holdout: %w", err)
	}

	base := buildBaseFrame(state.Spec, holdout, predictions)
	history := buildHistoryFrame(train)
	actuals := buildActualsFrame(state.Spec, holdout)
	state.Actuals = actuals

	reconciler, err := reconcile.NewReconciler(state.Spec, state.Matrix, reconcile.Params{
		ProportionDays:  s.cfg.Forecast.ProportionDays,
		ShrinkageLambda: s.cfg.Forecast.ShrinkageLambda,
	})
	if err != nil {
		return fmt.Errorf("create reconciler: %w", err)
	}

	reconciled, err := reconciler.Reconcile(ctx, base, baseColumn, history, actualColumn, reconcile.AllMethods())
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	checker := reconcile.NewConsistencyChecker(state.Spec)
	report, err := checker.Check(reconciled)
	if err != nil {
		return fmt.Errorf("consistency check: %w", err)
	}
	if !report.Consistent && s.logger != nil {
		s.logger.WarnContext(ctx, "reconciled forecasts violate coherence tolerance",
			slog.Int("violations", len(report.Violations)))
	}

	evaluation, err := reconcile.Evaluate(state.Spec, reconciled, actuals, actualColumn)
	if err != nil {
		return fmt.Errorf("evaluate reconciliation: %w", err)
	}
	best, err := reconcile.SelectBest(evaluation, "rmse", nil)
	if err != nil {
		return fmt.Errorf("select best method: %w", err)
	}

	state.Reconciled = reconciled
	state.Evaluation = evaluation
	state.BestMethod = best
	return nil
}

// buildBaseFrame stacks bottom predictions with aggregate-level forecasts
// recomputed by summation, so every hierarchy node carries a base value
func buildBaseFrame(spec *hierarchy.Spec, holdout *features.Panel, predictions []float64) *reconcile.Frame {
	return buildStackedFrame(spec, baseColumn, holdout.Rows, predictions)
}

// buildActualsFrame stacks the holdout actuals over every hierarchy node so
// evaluation scores aggregate levels as well as the bottom
func buildActualsFrame(spec *hierarchy.Spec, holdout *features.Panel) *reconcile.Frame {
	targets := make([]float64, len(holdout.Rows))
	for i := range holdout.Rows {
		targets[i] = holdout.Rows[i].Target
	}
	return buildStackedFrame(spec, actualColumn, holdout.Rows, targets)
}

// buildHistoryFrame exposes bottom-level actual sales over the training
// window only. The top-down shares and the shrinkage covariance must not
// see the holdout they are later scored on.
func buildHistoryFrame(train *features.Panel) *reconcile.Frame {
	frame := reconcile.NewFrame(actualColumn)
	for _, row := range train.Rows {
		frame.Append(hierarchy.BottomID(row.StoreNbr, row.Family), row.Date,
			map[string]float64{actualColumn: row.Target})
	}
	return frame
}

// buildStackedFrame writes one value per bottom row plus per-date Total,
// Store and Family aggregates computed by summation
func buildStackedFrame(spec *hierarchy.Spec, column string, rows []features.Row, values []float64) *reconcile.Frame {
	type agg struct {
		total    float64
		byStore  map[int]float64
		byFamily map[string]float64
	}
	perDate := make(map[time.Time]*agg)

	frame := reconcile.NewFrame(column)
	for i, row := range rows {
		frame.Append(hierarchy.BottomID(row.StoreNbr, row.Family), row.Date,
			map[string]float64{column: values[i]})

		a, ok := perDate[row.Date]
		if !ok {
			a = &agg{byStore: make(map[int]float64), byFamily: make(map[string]float64)}
			perDate[row.Date] = a
		}
		a.total += values[i]
		a.byStore[row.StoreNbr] += values[i]
		a.byFamily[row.Family] += values[i]
	}

	for date, a := range perDate {
		frame.Append(string(hierarchy.LevelTotal), date, map[string]float64{column: a.total})
		for _, store := range spec.Stores {
			frame.Append(fmt.Sprintf("Store_%d", store), date,
				map[string]float64{column: a.byStore[store]})
		}
		for _, family := range spec.Families {
			frame.Append(fmt.Sprintf("Family_%s", family), date,
				map[string]float64{column: a.byFamily[family]})
		}
	}
	return frame
}

// ReportStep writes the forecast, evaluation and workbook artifacts
type ReportStep struct {
	cfg *config.Config
}

func (s *ReportStep) ID() string   { return StepReport }
func (s *ReportStep) Name() string { return "Write reports" }

func (s *ReportStep) Validate(state *RunState) error {
	if state.Reconciled == nil || len(state.Evaluation) == 0 {
		return fmt.Errorf("no reconciliation results available")
	}
	return nil
}

func (s *ReportStep) Execute(ctx context.Context, state *RunState) error {
	writer := exporter.NewCSVWriter()
	if err := writer.WriteForecastCSV(s.cfg.ReportPath(services.ForecastFilename), state.Reconciled); err != nil {
		return fmt.Errorf("write forecast: %w", err)
	}
	if err := writer.WriteEvaluationCSV(s.cfg.ReportPath("evaluation.csv"), state.Evaluation); err != nil {
		return fmt.Errorf("write evaluation: %w", err)
	}

	report := &exporter.ExcelReport{
		Evaluation: state.Evaluation,
		CV:         state.CVResult,
		BestMethod: state.BestMethod,
	}
	if err := report.Write(s.cfg.ReportPath("evaluation.xlsx")); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
