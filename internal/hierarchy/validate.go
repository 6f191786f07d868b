package hierarchy

import (
	"fmt"
)

// StructuralError reports a violated summing-matrix invariant with the
// expected and observed values so build failures are diagnosable.
type StructuralError struct {
	Check    string
	Row      int
	Expected float64
	Actual   float64
}

// Error implements the error interface
func (e *StructuralError) Error() string {
	return fmt.Sprintf("summing matrix invariant violated: %s (row %d): expected %g, got %g",
		e.Check, e.Row, e.Expected, e.Actual)
}

// ValidateSummingMatrix checks the structural invariants of S against its
// spec. It is a build-time gate: any violation is fatal for everything
// downstream, so the first failed check is returned immediately.
//
// Checks:
//  1. the Total row sums to NBottom
//  2. every store row sums to NFamilies
//  3. every family row sums to NStores
//  4. the trailing NBottom×NBottom block is exactly the identity
func ValidateSummingMatrix(m *SummingMatrix, spec *Spec) error {
	wantRows := spec.NTotal()
	if m.Rows != wantRows || m.Cols != spec.NBottom {
		return &StructuralError{
			Check:    fmt.Sprintf("matrix shape (%dx%d, want %dx%d)", m.Rows, m.Cols, wantRows, spec.NBottom),
			Expected: float64(wantRows),
			Actual:   float64(m.Rows),
		}
	}

	if got := m.RowSum(0); got != float64(spec.NBottom) {
		return &StructuralError{Check: "total row sum", Row: 0, Expected: float64(spec.NBottom), Actual: got}
	}

	for i := 0; i < spec.NStores; i++ {
		if got := m.RowSum(1 + i); got != float64(spec.NFamilies) {
			return &StructuralError{Check: "store row sum", Row: 1 + i, Expected: float64(spec.NFamilies), Actual: got}
		}
	}

	for j := 0; j < spec.NFamilies; j++ {
		row := 1 + spec.NStores + j
		if got := m.RowSum(row); got != float64(spec.NStores) {
			return &StructuralError{Check: "family row sum", Row: row, Expected: float64(spec.NStores), Actual: got}
		}
	}

	// Entries are exact 0/1 so the identity check uses exact equality
	bottomStart := 1 + spec.NStores + spec.NFamilies
	for i := 0; i < spec.NBottom; i++ {
		for j := 0; j < spec.NBottom; j++ {
			want := float32(0)
			if i == j {
				want = 1
			}
			if got := m.At(bottomStart+i, j); got != want {
				return &StructuralError{
					Check:    fmt.Sprintf("bottom identity block entry (%d,%d)", i, j),
					Row:      bottomStart + i,
					Expected: float64(want),
					Actual:   float64(got),
				}
			}
		}
	}

	return nil
}
