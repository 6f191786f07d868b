package features

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Row is one observation of one bottom-level series on one day.
//
// Aux holds raw input columns merged during preprocessing (promotions, oil
// price, holiday flag, store cluster); Features holds derived columns added
// by the feature builder. Undefined values are NaN.
type Row struct {
	StoreNbr int
	Family   string
	Date     time.Time
	Target   float64

	Aux      map[string]float64
	Features map[string]float64
}

// AuxValue returns the named auxiliary column value, NaN when absent
func (r *Row) AuxValue(name string) float64 {
	if v, ok := r.Aux[name]; ok {
		return v
	}
	return math.NaN()
}

// Feature returns the named derived feature value, NaN when absent
func (r *Row) Feature(name string) float64 {
	if v, ok := r.Features[name]; ok {
		return v
	}
	return math.NaN()
}

// SetFeature records a derived feature value on the row
func (r *Row) SetFeature(name string, v float64) {
	if r.Features == nil {
		r.Features = make(map[string]float64)
	}
	r.Features[name] = v
}

// Panel is an in-memory table of per-series daily observations plus the
// derived feature columns present on its rows.
type Panel struct {
	Rows []Row

	// AuxColumns lists the auxiliary input columns present after
	// preprocessing, in merge order.
	AuxColumns []string

	// FeatureColumns lists the derived columns in deterministic build
	// order. Empty until the feature builder has run.
	FeatureColumns []string
}

// HasAuxColumn reports whether an auxiliary column was merged into the panel
func (p *Panel) HasAuxColumn(name string) bool {
	for _, c := range p.AuxColumns {
		if c == name {
			return true
		}
	}
	return false
}

// SortByGroupDate sorts rows by (store, family, date) ascending. Lag and
// rolling computation requires this ordering.
func (p *Panel) SortByGroupDate() {
	sort.SliceStable(p.Rows, func(i, j int) bool {
		a, b := p.Rows[i], p.Rows[j]
		if a.StoreNbr != b.StoreNbr {
			return a.StoreNbr < b.StoreNbr
		}
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.Date.Before(b.Date)
	})
}

// DateRange returns the earliest and latest observation dates
func (p *Panel) DateRange() (min, max time.Time, err error) {
	if len(p.Rows) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("empty panel")
	}

	min, max = p.Rows[0].Date, p.Rows[0].Date
	for _, row := range p.Rows[1:] {
		if row.Date.Before(min) {
			min = row.Date
		}
		if row.Date.After(max) {
			max = row.Date
		}
	}
	return min, max, nil
}

// FilterDateRange returns the rows with from <= date and date inside the
// bound: exclusive upper bound when inclusive is false, inclusive otherwise.
// Column metadata is shared with the source panel.
func (p *Panel) FilterDateRange(from, to time.Time, inclusive bool) *Panel {
	out := &Panel{AuxColumns: p.AuxColumns, FeatureColumns: p.FeatureColumns}
	for _, row := range p.Rows {
		if row.Date.Before(from) {
			continue
		}
		if inclusive {
			if row.Date.After(to) {
				continue
			}
		} else if !row.Date.Before(to) {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Targets returns the target column as a slice in row order
func (p *Panel) Targets() []float64 {
	out := make([]float64, len(p.Rows))
	for i := range p.Rows {
		out[i] = p.Rows[i].Target
	}
	return out
}

// groupSpan identifies a contiguous run of rows belonging to one series in
// a panel sorted by (store, family, date)
type groupSpan struct {
	start, end int // [start, end)
}

// groupSpans walks a sorted panel and returns the per-series row ranges
func (p *Panel) groupSpans() []groupSpan {
	var spans []groupSpan
	start := 0
	for i := 1; i <= len(p.Rows); i++ {
		if i == len(p.Rows) ||
			p.Rows[i].StoreNbr != p.Rows[start].StoreNbr ||
			p.Rows[i].Family != p.Rows[start].Family {
			spans = append(spans, groupSpan{start: start, end: i})
			start = i
		}
	}
	return spans
}
