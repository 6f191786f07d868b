package validation

import (
	"fmt"
	"math"
)

// mapeEpsilon smooths the MAPE denominator so zero-sales days do not blow
// up the metric
const mapeEpsilon = 1.0

// Summary bundles the scalar accuracy metrics for one prediction vector.
// RMSLE is the primary metric; the others are diagnostic.
type Summary struct {
	RMSLE float64 `json:"rmsle"`
	RMSE  float64 `json:"rmse"`
	MAE   float64 `json:"mae"`
	MAPE  float64 `json:"mape"`
	N     int     `json:"n_samples"`
}

func checkVectors(actual, predicted []float64) error {
	if len(actual) == 0 {
		return fmt.Errorf("metric requires at least one observation")
	}
	if len(actual) != len(predicted) {
		return fmt.Errorf("vector length mismatch: %d actuals vs %d predictions", len(actual), len(predicted))
	}
	return nil
}

// RMSLE computes root mean squared logarithmic error. Both vectors are
// clipped at zero before the log transform so negative inputs cannot
// produce NaN.
func RMSLE(actual, predicted []float64) (float64, error) {
	if err := checkVectors(actual, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range actual {
		a := math.Max(actual[i], 0)
		p := math.Max(predicted[i], 0)
		d := math.Log1p(p) - math.Log1p(a)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual))), nil
}

// RMSE computes root mean squared error
func RMSE(actual, predicted []float64) (float64, error) {
	if err := checkVectors(actual, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range actual {
		d := predicted[i] - actual[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual))), nil
}

// MAE computes mean absolute error
func MAE(actual, predicted []float64) (float64, error) {
	if err := checkVectors(actual, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(predicted[i] - actual[i])
	}
	return sum / float64(len(actual)), nil
}

// MAPE computes mean absolute percentage error with an epsilon-smoothed
// denominator
func MAPE(actual, predicted []float64) (float64, error) {
	if err := checkVectors(actual, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(predicted[i]-actual[i]) / (math.Abs(actual[i]) + mapeEpsilon)
	}
	return sum / float64(len(actual)), nil
}

// ComputeSummary evaluates all scalar metrics at once
func ComputeSummary(actual, predicted []float64) (Summary, error) {
	rmsle, err := RMSLE(actual, predicted)
	if err != nil {
		return Summary{}, err
	}
	rmse, err := RMSE(actual, predicted)
	if err != nil {
		return Summary{}, err
	}
	mae, err := MAE(actual, predicted)
	if err != nil {
		return Summary{}, err
	}
	mape, err := MAPE(actual, predicted)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		RMSLE: rmsle,
		RMSE:  rmse,
		MAE:   mae,
		MAPE:  mape,
		N:     len(actual),
	}, nil
}
