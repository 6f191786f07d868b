package reconcile

import (
	"fmt"

	"sfcli/internal/hierarchy"
	"sfcli/internal/validation"
)

// LevelMetrics scores one reconciliation method at one hierarchy level
type LevelMetrics struct {
	Method string          `json:"method"`
	Level  hierarchy.Level `json:"level"`
	RMSE   float64         `json:"rmse"`
	MAE    float64         `json:"mae"`
	MAPE   float64         `json:"mape"`
	N      int             `json:"n_samples"`
}

// evaluationLevels covers every hierarchy level, most aggregate first
var evaluationLevels = []hierarchy.Level{
	hierarchy.LevelTotal,
	hierarchy.LevelStore,
	hierarchy.LevelFamily,
	hierarchy.LevelBottom,
}

// Evaluate scores every value column of a reconciled frame against actuals
// at each hierarchy level. Actuals must cover every (node, date) pair the
// reconciled frame touches at that level; levels with no overlap are
// omitted rather than failing.
func Evaluate(spec *hierarchy.Spec, reconciled *Frame, actuals *Frame, actualColumn string) ([]LevelMetrics, error) {
	if reconciled == nil || len(reconciled.Rows) == 0 {
		return nil, fmt.Errorf("cannot evaluate an empty frame")
	}
	if actuals == nil || !actuals.HasColumn(actualColumn) {
		return nil, fmt.Errorf("actuals column %q not found", actualColumn)
	}

	actualIdx := actuals.index(actualColumn)
	var results []LevelMetrics

	for _, column := range reconciled.Columns {
		predIdx := reconciled.index(column)

		for _, level := range evaluationLevels {
			ids := spec.LevelIDs(level)
			idSet := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				idSet[id] = struct{}{}
			}

			var actual, predicted []float64
			for key, pred := range predIdx {
				if _, ok := idSet[key.id]; !ok {
					continue
				}
				act, ok := actualIdx[key]
				if !ok {
					continue
				}
				actual = append(actual, act)
				predicted = append(predicted, pred)
			}
			if len(actual) == 0 {
				continue
			}

			rmse, err := validation.RMSE(actual, predicted)
			if err != nil {
				return nil, fmt.Errorf("evaluate %s at %s: %w", column, level, err)
			}
			mae, err := validation.MAE(actual, predicted)
			if err != nil {
				return nil, fmt.Errorf("evaluate %s at %s: %w", column, level, err)
			}
			mape, err := validation.MAPE(actual, predicted)
			if err != nil {
				return nil, fmt.Errorf("evaluate %s at %s: %w", column, level, err)
			}

			results = append(results, LevelMetrics{
				Method: column,
				Level:  level,
				RMSE:   rmse,
				MAE:    mae,
				MAPE:   mape,
				N:      len(actual),
			})
		}
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no overlap between reconciled forecasts and actuals")
	}
	return results, nil
}

// SelectBest returns the method with the lowest mean score for the chosen
// metric, optionally restricted to one hierarchy level. Ties go to the
// method encountered first.
func SelectBest(results []LevelMetrics, metric string, level *hierarchy.Level) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no evaluation results to select from")
	}

	type score struct {
		sum float64
		n   int
	}
	scores := make(map[string]*score)
	var order []string

	for _, r := range results {
		if level != nil && r.Level != *level {
			continue
		}
		v, err := metricValue(r, metric)
		if err != nil {
			return "", err
		}
		s, ok := scores[r.Method]
		if !ok {
			s = &score{}
			scores[r.Method] = s
			order = append(order, r.Method)
		}
		s.sum += v
		s.n++
	}

	if len(order) == 0 {
		return "", fmt.Errorf("no evaluation results at the requested level")
	}

	best := order[0]
	bestMean := scores[best].sum / float64(scores[best].n)
	for _, method := range order[1:] {
		mean := scores[method].sum / float64(scores[method].n)
		if mean < bestMean {
			best = method
			bestMean = mean
		}
	}
	return best, nil
}

func metricValue(r LevelMetrics, metric string) (float64, error) {
	switch metric {
	case "rmse":
		return r.RMSE, nil
	case "mae":
		return r.MAE, nil
	case "mape":
		return r.MAPE, nil
	}
	return 0, fmt.Errorf("unknown selection metric %q", metric)
}
