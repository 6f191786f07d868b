package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular reports a MinTrace inner matrix that stayed singular after
// regularization
var ErrSingular = errors.New("inner matrix singular after regularization")

// jitterScales escalate the diagonal regularization applied before giving
// up on the Cholesky factorization
var jitterScales = []float64{0, 1e-8, 1e-6, 1e-4}

// varianceFloor keeps the error covariance diagonal invertible even for
// nodes with a flat history
const varianceFloor = 1e-8

// nodeHistory holds historical actuals stacked to all hierarchy levels,
// one vector per date in ascending date order
type nodeHistory struct {
	dates  []time.Time
	values [][]float64
}

// buildNodeHistory assembles per-date stacked actual vectors from a
// bottom-level actuals frame. Bottom series absent on a date count as zero
// sales; aggregate levels are derived, never read from the frame.
func (r *Reconciler) buildNodeHistory(actuals *Frame, column string) (*nodeHistory, error) {
	idx := actuals.index(column)
	if len(idx) == 0 {
		return nil, fmt.Errorf("actuals column %q holds no values", column)
	}

	byDate := make(map[time.Time][]float64)
	for key, v := range idx {
		pos, ok := r.bottomPos(key.id)
		if !ok {
			// Aggregate-level actuals are recomputed from the bottom
			continue
		}
		bottom, ok := byDate[key.date]
		if !ok {
			bottom = make([]float64, r.spec.NBottom)
			byDate[key.date] = bottom
		}
		bottom[pos] = v
	}
	if len(byDate) == 0 {
		return nil, fmt.Errorf("actuals column %q holds no bottom-level series", column)
	}

	h := &nodeHistory{}
	for d := range byDate {
		h.dates = append(h.dates, d)
	}
	sort.Slice(h.dates, func(i, j int) bool { return h.dates[i].Before(h.dates[j]) })

	h.values = make([][]float64, len(h.dates))
	for i, d := range h.dates {
		h.values[i] = r.aggregate(byDate[d])
	}
	return h, nil
}

// bottomPos returns the column index of a bottom series id
func (r *Reconciler) bottomPos(id string) (int, bool) {
	pos, ok := r.bottomIndex[id]
	return pos, ok
}

// shrunkDiag estimates the per-node forecast error variance from one-step
// differences of historical actuals, shrunk toward the mean variance.
// Nodes without enough history take the mean variance outright.
func (r *Reconciler) shrunkDiag(ctx context.Context, history *nodeHistory) []float64 {
	n := r.spec.NTotal()
	variances := make([]float64, n)
	defined := make([]bool, n)

	if history != nil && len(history.dates) >= 2 {
		for node := 0; node < n; node++ {
			diffs := make([]float64, 0, len(history.dates)-1)
			for t := 1; t < len(history.dates); t++ {
				diffs = append(diffs, history.values[t][node]-history.values[t-1][node])
			}
			if len(diffs) < 2 {
				continue
			}
			mean := 0.0
			for _, d := range diffs {
				mean += d
			}
			mean /= float64(len(diffs))
			ss := 0.0
			for _, d := range diffs {
				ss += (d - mean) * (d - mean)
			}
			variances[node] = ss / float64(len(diffs))
			defined[node] = true
		}
	}

	vbar, nDefined := 0.0, 0
	for i := range variances {
		if defined[i] {
			vbar += variances[i]
			nDefined++
		}
	}
	if nDefined == 0 {
		r.logger.WarnContext(ctx, "no usable history for covariance estimation, falling back to identity")
		return identityDiag(n)
	}
	vbar /= float64(nDefined)

	lambda := r.params.ShrinkageLambda
	out := make([]float64, n)
	for i := range out {
		v := variances[i]
		if !defined[i] {
			v = vbar
		}
		out[i] = (1-lambda)*v + lambda*vbar
		if out[i] < varianceFloor {
			out[i] = varianceFloor
		}
	}
	return out
}

// minTrace solves the generalized least squares reconciliation
// S (St W' S)^-1 St W' yhat for a diagonal W, where W' is its inverse.
// The inner matrix gets escalating diagonal jitter before the LU fallback;
// exhausting both raises ErrSingular.
func (r *Reconciler) minTrace(yhat []float64, wDiag []float64) ([]float64, error) {
	nTotal := r.spec.NTotal()
	nBottom := r.spec.NBottom
	if len(yhat) != nTotal {
		return nil, &DimensionError{Expected: nTotal, Actual: len(yhat)}
	}

	// diag(1/w) S, computed row by row
	scaled := mat.NewDense(nTotal, nBottom, nil)
	for i := 0; i < nTotal; i++ {
		inv := 1 / wDiag[i]
		for j := 0; j < nBottom; j++ {
			scaled.Set(i, j, r.s.At(i, j)*inv)
		}
	}

	var inner mat.Dense
	inner.Mul(r.s.T(), scaled)

	weighted := make([]float64, nTotal)
	for i := range yhat {
		weighted[i] = yhat[i] / wDiag[i]
	}
	var rhs mat.VecDense
	rhs.MulVec(r.s.T(), mat.NewVecDense(nTotal, weighted))

	bottom, err := solveSPD(&inner, &rhs)
	if err != nil {
		return nil, err
	}

	return r.aggregate(bottom.RawVector().Data), nil
}

// solveSPD solves A x = b for a symmetric positive definite A, retrying
// with growing diagonal jitter and finally a plain LU factorization
func solveSPD(a *mat.Dense, b *mat.VecDense) (*mat.VecDense, error) {
	n, _ := a.Dims()

	meanDiag := 0.0
	for i := 0; i < n; i++ {
		meanDiag += a.At(i, i)
	}
	meanDiag /= float64(n)
	if meanDiag <= 0 {
		meanDiag = 1
	}

	for _, scale := range jitterScales {
		sym := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := (a.At(i, j) + a.At(j, i)) / 2
				if i == j {
					v += scale * meanDiag
				}
				sym.SetSym(i, j, v)
			}
		}

		var chol mat.Cholesky
		if !chol.Factorize(sym) {
			continue
		}
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, b); err != nil {
			continue
		}
		return &x, nil
	}

	var lu mat.LU
	lu.Factorize(a)
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &x, nil
}
