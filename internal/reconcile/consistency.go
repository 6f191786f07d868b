package reconcile

import (
	"fmt"
	"math"
	"time"

	"sfcli/internal/hierarchy"
)

// DefaultTolerance is the absolute coherence tolerance before magnitude
// scaling
const DefaultTolerance = 1e-6

// Violation records one coherence breach, with both sides of the
// comparison so the offending method and date are diagnosable
type Violation struct {
	Column   string
	Date     time.Time
	Expected float64 // Total-level value
	Actual   float64 // sum of bottom-level values
}

func (v Violation) String() string {
	return fmt.Sprintf("column %s at %s: total %.6f but bottom sum %.6f",
		v.Column, v.Date.Format("2006-01-02"), v.Expected, v.Actual)
}

// ConsistencyReport is the outcome of a coherence check across every value
// column and date of a frame
type ConsistencyReport struct {
	Consistent bool
	Checked    int
	Violations []Violation
}

// ConsistencyChecker verifies that bottom-level values sum to the
// Total-level value for every column and date of a forecast frame
type ConsistencyChecker struct {
	spec *hierarchy.Spec

	// Tolerance is absolute, scaled up by the total's magnitude when the
	// total exceeds one
	Tolerance float64
}

// NewConsistencyChecker returns a checker with the default tolerance
func NewConsistencyChecker(spec *hierarchy.Spec) *ConsistencyChecker {
	return &ConsistencyChecker{spec: spec, Tolerance: DefaultTolerance}
}

// Check walks every value column and date. It never errors on incoherence,
// only on a frame missing required nodes; callers decide what a violation
// means.
func (c *ConsistencyChecker) Check(frame *Frame) (*ConsistencyReport, error) {
	if frame == nil || len(frame.Rows) == 0 {
		return nil, fmt.Errorf("cannot check an empty frame")
	}

	report := &ConsistencyReport{Consistent: true}
	totalID := string(hierarchy.LevelTotal)

	for _, column := range frame.Columns {
		idx := frame.index(column)
		for _, date := range frame.Dates() {
			total, ok := idx[frameKey{id: totalID, date: date}]
			if !ok {
				return nil, fmt.Errorf("column %s at %s: missing Total node",
					column, date.Format("2006-01-02"))
			}

			bottomSum := 0.0
			for _, id := range c.spec.BottomIDs {
				v, ok := idx[frameKey{id: id, date: date}]
				if !ok {
					return nil, fmt.Errorf("column %s at %s: missing bottom series %s",
						column, date.Format("2006-01-02"), id)
				}
				bottomSum += v
			}

			report.Checked++
			tol := c.Tolerance * math.Max(1, math.Abs(total))
			if math.Abs(bottomSum-total) > tol {
				report.Consistent = false
				report.Violations = append(report.Violations, Violation{
					Column:   column,
					Date:     date,
					Expected: total,
					Actual:   bottomSum,
				})
			}
		}
	}

	return report, nil
}
