package reconcile

import (
	"fmt"
	"sort"
	"time"

	"sfcli/internal/hierarchy"
)

// Row is one series observation in a forecast frame, holding one value per
// frame column
type Row struct {
	SeriesID string
	Date     time.Time
	Values   map[string]float64
}

// Frame is a long-format table of per-series, per-date values. Base
// forecasts arrive as a single-column frame; reconciliation appends one
// column per method.
type Frame struct {
	Columns []string
	Rows    []Row
}

// NewFrame returns an empty frame with the given value columns
func NewFrame(columns ...string) *Frame {
	return &Frame{Columns: columns}
}

// Append adds one observation to the frame
func (f *Frame) Append(seriesID string, date time.Time, values map[string]float64) {
	f.Rows = append(f.Rows, Row{SeriesID: seriesID, Date: date, Values: values})
}

// HasColumn reports whether the frame carries the named value column
func (f *Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Dates returns the frame's distinct observation dates ascending
func (f *Frame) Dates() []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, row := range f.Rows {
		if _, ok := seen[row.Date]; !ok {
			seen[row.Date] = struct{}{}
			out = append(out, row.Date)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Value looks up one observation by column, series and date
func (f *Frame) Value(column, seriesID string, date time.Time) (float64, bool) {
	for _, row := range f.Rows {
		if row.SeriesID == seriesID && row.Date.Equal(date) {
			v, ok := row.Values[column]
			return v, ok
		}
	}
	return 0, false
}

// index builds a (series, date) lookup over one column
func (f *Frame) index(column string) map[frameKey]float64 {
	idx := make(map[frameKey]float64, len(f.Rows))
	for _, row := range f.Rows {
		if v, ok := row.Values[column]; ok {
			idx[frameKey{id: row.SeriesID, date: row.Date}] = v
		}
	}
	return idx
}

type frameKey struct {
	id   string
	date time.Time
}

// vectorAt assembles the stacked node vector for one date in summing-matrix
// row order. Every node must be present; a partial vector cannot be
// reconciled.
func vectorAt(idx map[frameKey]float64, spec *hierarchy.Spec, date time.Time) ([]float64, error) {
	ids := spec.AllIDs()
	out := make([]float64, len(ids))
	missing := 0
	for i, id := range ids {
		v, ok := idx[frameKey{id: id, date: date}]
		if !ok {
			missing++
			continue
		}
		out[i] = v
	}
	if missing > 0 {
		return nil, &DimensionError{
			Expected: len(ids),
			Actual:   len(ids) - missing,
			Date:     date,
		}
	}
	return out, nil
}

// DimensionError reports a forecast vector whose node count does not match
// the hierarchy
type DimensionError struct {
	Expected int
	Actual   int
	Date     time.Time
}

func (e *DimensionError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("forecast vector has %d nodes, hierarchy requires %d", e.Actual, e.Expected)
	}
	return fmt.Sprintf("forecast vector at %s has %d nodes, hierarchy requires %d",
		e.Date.Format("2006-01-02"), e.Actual, e.Expected)
}
