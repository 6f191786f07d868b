package hierarchy

import (
	"fmt"
)

// SummingMatrix is the structural matrix S relating bottom-level forecasts
// to every hierarchy level: S @ bottom yields the coherent value at each
// node. Entries are 0/1 stored as float32 for compact exact representation.
//
// Row layout:
//
//	row 0                     Total (all ones)
//	rows 1..NStores           one per store
//	rows NStores+1..+NFamilies one per family
//	final NBottom rows        identity over bottom series
//
// The matrix is read-only after construction and safe for concurrent use.
type SummingMatrix struct {
	Rows int
	Cols int
	Data []float32 // row-major
}

// BuildSummingMatrix constructs S from a hierarchy specification using
// index arithmetic: the store-row block for store index i spans columns
// [i*NFamilies, (i+1)*NFamilies), and the family-row entry for family j
// under store i sits at column i*NFamilies+j.
func BuildSummingMatrix(spec *Spec) *SummingMatrix {
	nTotal := spec.NTotal()
	m := &SummingMatrix{
		Rows: nTotal,
		Cols: spec.NBottom,
		Data: make([]float32, nTotal*spec.NBottom),
	}

	// Total row sums every bottom series
	for col := 0; col < spec.NBottom; col++ {
		m.set(0, col, 1)
	}

	// Store rows: contiguous family block per store
	for storeIdx := 0; storeIdx < spec.NStores; storeIdx++ {
		start := storeIdx * spec.NFamilies
		for col := start; col < start+spec.NFamilies; col++ {
			m.set(1+storeIdx, col, 1)
		}
	}

	// Family rows: strided across stores
	for familyIdx := 0; familyIdx < spec.NFamilies; familyIdx++ {
		row := 1 + spec.NStores + familyIdx
		for storeIdx := 0; storeIdx < spec.NStores; storeIdx++ {
			m.set(row, storeIdx*spec.NFamilies+familyIdx, 1)
		}
	}

	// Bottom block: identity
	bottomStart := 1 + spec.NStores + spec.NFamilies
	for i := 0; i < spec.NBottom; i++ {
		m.set(bottomStart+i, i, 1)
	}

	return m
}

// At returns the entry at row i, column j
func (m *SummingMatrix) At(i, j int) float32 {
	return m.Data[i*m.Cols+j]
}

func (m *SummingMatrix) set(i, j int, v float32) {
	m.Data[i*m.Cols+j] = v
}

// RowSum returns the sum of one row, accumulated in float64
func (m *SummingMatrix) RowSum(i int) float64 {
	sum := 0.0
	for j := 0; j < m.Cols; j++ {
		sum += float64(m.At(i, j))
	}
	return sum
}

// MulVec computes S @ bottom, mapping a bottom-level vector to all levels
func (m *SummingMatrix) MulVec(bottom []float64) ([]float64, error) {
	if len(bottom) != m.Cols {
		return nil, fmt.Errorf("dimension mismatch: bottom vector has %d entries, summing matrix has %d columns",
			len(bottom), m.Cols)
	}

	out := make([]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		row := m.Data[i*m.Cols : (i+1)*m.Cols]
		sum := 0.0
		for j, s := range row {
			if s != 0 {
				sum += float64(s) * bottom[j]
			}
		}
		out[i] = sum
	}
	return out, nil
}
