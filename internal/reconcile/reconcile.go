package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"sfcli/internal/hierarchy"
)

// Method identifies one reconciliation strategy
type Method string

const (
	MethodBottomUp       Method = "bottom_up"
	MethodTopDown        Method = "top_down_forecast_proportions"
	MethodMinTraceOLS    Method = "min_trace_ols"
	MethodMinTraceShrink Method = "min_trace_shrink"
)

// AllMethods lists every supported method in comparison order
func AllMethods() []Method {
	return []Method{MethodBottomUp, MethodTopDown, MethodMinTraceShrink, MethodMinTraceOLS}
}

// Params tunes the methods that need history
type Params struct {
	// ProportionDays is the trailing window of actuals used to compute
	// top-down distribution shares
	ProportionDays int

	// ShrinkageLambda pulls the per-node residual variances toward their
	// mean when estimating the MinTrace error covariance
	ShrinkageLambda float64
}

// DefaultParams returns the standard tuning
func DefaultParams() Params {
	return Params{ProportionDays: 90, ShrinkageLambda: 0.1}
}

// Reconciler turns incoherent per-level forecasts into coherent ones.
// It is a pure function of its inputs and safe for concurrent use: the
// summing matrix and spec are read-only after construction.
type Reconciler struct {
	spec        *hierarchy.Spec
	s           *mat.Dense
	bottomIndex map[string]int
	params      Params
	logger      *slog.Logger
}

// NewReconciler validates the summing matrix against the spec and prepares
// the dense float64 copy the solvers operate on
func NewReconciler(spec *hierarchy.Spec, m *hierarchy.SummingMatrix, params Params) (*Reconciler, error) {
	if err := hierarchy.ValidateSummingMatrix(m, spec); err != nil {
		return nil, fmt.Errorf("summing matrix rejected: %w", err)
	}
	if params.ProportionDays < 1 {
		params.ProportionDays = DefaultParams().ProportionDays
	}
	if params.ShrinkageLambda < 0 || params.ShrinkageLambda > 1 {
		return nil, fmt.Errorf("shrinkage lambda must be in [0,1], got %g", params.ShrinkageLambda)
	}

	dense := mat.NewDense(m.Rows, m.Cols, nil)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			dense.Set(i, j, float64(m.At(i, j)))
		}
	}

	bottomIndex := make(map[string]int, spec.NBottom)
	for i, id := range spec.BottomIDs {
		bottomIndex[id] = i
	}

	return &Reconciler{
		spec:        spec,
		s:           dense,
		bottomIndex: bottomIndex,
		params:      params,
		logger:      slog.Default(),
	}, nil
}

// Reconcile produces one coherent forecast column per requested method.
// Base forecasts must cover every hierarchy node at every date. Actuals
// are required for top-down proportions and the shrinkage covariance; pass
// them at the bottom level, aggregates are derived internally.
func (r *Reconciler) Reconcile(ctx context.Context, base *Frame, baseColumn string, actuals *Frame, actualColumn string, methods []Method) (*Frame, error) {
	if len(methods) == 0 {
		methods = AllMethods()
	}
	if base == nil || !base.HasColumn(baseColumn) {
		return nil, fmt.Errorf("base forecast column %q not found", baseColumn)
	}

	dates := base.Dates()
	if len(dates) == 0 {
		return nil, fmt.Errorf("base forecast frame is empty")
	}

	baseIdx := base.index(baseColumn)
	stacked := make(map[time.Time][]float64, len(dates))
	for _, d := range dates {
		vec, err := vectorAt(baseIdx, r.spec, d)
		if err != nil {
			return nil, err
		}
		stacked[d] = vec
	}

	// Method-specific state derived from history, computed once per call
	var (
		shares  []float64
		history *nodeHistory
	)
	for _, method := range methods {
		switch method {
		case MethodTopDown, MethodMinTraceShrink:
			if history == nil {
				if actuals == nil || !actuals.HasColumn(actualColumn) {
					return nil, fmt.Errorf("method %s requires historical actuals column %q", method, actualColumn)
				}
				var err error
				history, err = r.buildNodeHistory(actuals, actualColumn)
				if err != nil {
					return nil, fmt.Errorf("method %s: %w", method, err)
				}
			}
		}
	}

	columns := make([]string, len(methods))
	for i, m := range methods {
		columns[i] = string(m)
	}
	out := NewFrame(columns...)

	ids := r.spec.AllIDs()
	results := make(map[Method]map[time.Time][]float64, len(methods))

	for _, method := range methods {
		perDate := make(map[time.Time][]float64, len(dates))

		switch method {
		case MethodBottomUp:
			for _, d := range dates {
				perDate[d] = r.bottomUp(stacked[d])
			}

		case MethodTopDown:
			if shares == nil {
				var err error
				shares, err = r.forecastProportions(ctx, history)
				if err != nil {
					return nil, fmt.Errorf("method %s: %w", method, err)
				}
			}
			for _, d := range dates {
				perDate[d] = r.topDown(stacked[d], shares)
			}

		case MethodMinTraceOLS:
			w := identityDiag(r.spec.NTotal())
			for _, d := range dates {
				vec, err := r.minTrace(stacked[d], w)
				if err != nil {
					return nil, fmt.Errorf("method %s at %s: %w", method, d.Format("2006-01-02"), err)
				}
				perDate[d] = vec
			}

		case MethodMinTraceShrink:
			w := r.shrunkDiag(ctx, history)
			for _, d := range dates {
				vec, err := r.minTrace(stacked[d], w)
				if err != nil {
					return nil, fmt.Errorf("method %s at %s: %w", method, d.Format("2006-01-02"), err)
				}
				perDate[d] = vec
			}

		default:
			return nil, fmt.Errorf("unknown reconciliation method %q", method)
		}

		results[method] = perDate
	}

	for _, d := range dates {
		for i, id := range ids {
			values := make(map[string]float64, len(methods))
			for _, method := range methods {
				values[string(method)] = results[method][d][i]
			}
			out.Append(id, d, values)
		}
	}

	r.logger.InfoContext(ctx, "reconciled forecasts",
		"methods", len(methods),
		"dates", len(dates),
		"nodes", len(ids),
	)

	return out, nil
}

// bottomUp discards aggregate forecasts and recomputes every level from the
// bottom block
func (r *Reconciler) bottomUp(yhat []float64) []float64 {
	bottom := yhat[r.spec.NTotal()-r.spec.NBottom:]
	return r.aggregate(bottom)
}

// topDown distributes the Total forecast to the bottom series by their
// historical shares, then rebuilds all levels
func (r *Reconciler) topDown(yhat []float64, shares []float64) []float64 {
	total := yhat[0]
	bottom := make([]float64, r.spec.NBottom)
	for i, share := range shares {
		bottom[i] = total * share
	}
	return r.aggregate(bottom)
}

// aggregate computes S times a bottom vector
func (r *Reconciler) aggregate(bottom []float64) []float64 {
	var out mat.VecDense
	out.MulVec(r.s, mat.NewVecDense(len(bottom), bottom))
	result := make([]float64, r.spec.NTotal())
	copy(result, out.RawVector().Data)
	return result
}

// forecastProportions computes each bottom series' share of total actuals
// over the trailing proportion window. A window with zero total falls back
// to uniform shares.
func (r *Reconciler) forecastProportions(ctx context.Context, history *nodeHistory) ([]float64, error) {
	if history == nil || len(history.dates) == 0 {
		return nil, fmt.Errorf("no historical actuals available for proportions")
	}

	lastDate := history.dates[len(history.dates)-1]
	windowStart := lastDate.AddDate(0, 0, -r.params.ProportionDays)

	offset := r.spec.NTotal() - r.spec.NBottom
	sums := make([]float64, r.spec.NBottom)
	total := 0.0
	for di, d := range history.dates {
		if d.Before(windowStart) {
			continue
		}
		vec := history.values[di]
		for i := 0; i < r.spec.NBottom; i++ {
			sums[i] += vec[offset+i]
			total += vec[offset+i]
		}
	}

	shares := make([]float64, r.spec.NBottom)
	if total <= 0 {
		r.logger.WarnContext(ctx, "zero total actuals in proportion window, using uniform shares",
			"window_days", r.params.ProportionDays,
		)
		for i := range shares {
			shares[i] = 1 / float64(r.spec.NBottom)
		}
		return shares, nil
	}

	for i := range shares {
		shares[i] = sums[i] / total
	}
	return shares, nil
}

func identityDiag(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
