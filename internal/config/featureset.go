package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// FeatureSet describes the columns the feature builder produces and the
// model consumes. It is passed explicitly into the feature and model layers
// so the same pipeline can run with different feature sets without code
// changes.
type FeatureSet struct {
	// Grouping and panel columns
	GroupColumns []string `yaml:"group_columns"`
	DateColumn   string   `yaml:"date_column"`
	TargetColumn string   `yaml:"target_column"`

	// Lag periods and rolling windows, in days. The forecast horizon is
	// appended as the maximum lag and window when absent.
	Lags    []int `yaml:"lags"`
	Windows []int `yaml:"windows"`

	// Optional auxiliary columns. Missing columns degrade to skipped
	// features rather than failing the build.
	PromotionColumn string `yaml:"promotion_column"`
	OilColumn       string `yaml:"oil_column"`
	HolidayColumn   string `yaml:"holiday_column"`
}

// DefaultFeatureSet returns the feature set used by the store-sales pipeline
func DefaultFeatureSet() FeatureSet {
	return FeatureSet{
		GroupColumns:    []string{"store_nbr", "family"},
		DateColumn:      "date",
		TargetColumn:    "sales",
		Lags:            []int{1, 7, 14, 28},
		Windows:         []int{7, 14, 28},
		PromotionColumn: "onpromotion",
		OilColumn:       "oil_price",
		HolidayColumn:   "is_holiday",
	}
}

// LoadFeatureSet reads a feature set definition from a YAML file, falling
// back to the default set when path is empty
func LoadFeatureSet(path string) (FeatureSet, error) {
	if path == "" {
		return DefaultFeatureSet(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FeatureSet{}, fmt.Errorf("read feature set file: %w", err)
	}

	fs := DefaultFeatureSet()
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return FeatureSet{}, fmt.Errorf("parse feature set file: %w", err)
	}

	if err := fs.Validate(); err != nil {
		return FeatureSet{}, fmt.Errorf("invalid feature set: %w", err)
	}

	return fs, nil
}

// Validate checks the structural requirements of a feature set
func (fs FeatureSet) Validate() error {
	if len(fs.GroupColumns) < 2 {
		return fmt.Errorf("feature set requires at least two group columns, got %d", len(fs.GroupColumns))
	}
	if fs.DateColumn == "" {
		return fmt.Errorf("feature set requires a date column")
	}
	if fs.TargetColumn == "" {
		return fmt.Errorf("feature set requires a target column")
	}
	for _, lag := range fs.Lags {
		if lag <= 0 {
			return fmt.Errorf("lag periods must be positive, got %d", lag)
		}
	}
	for _, w := range fs.Windows {
		if w <= 0 {
			return fmt.Errorf("rolling windows must be positive, got %d", w)
		}
	}
	return nil
}

// WithHorizon returns a copy of the feature set whose lags and windows
// include the forecast horizon as the maximum period
func (fs FeatureSet) WithHorizon(horizon int) FeatureSet {
	out := fs
	out.Lags = appendUnique(fs.Lags, horizon)
	out.Windows = appendUnique(fs.Windows, horizon)
	return out
}

func appendUnique(values []int, v int) []int {
	out := make([]int, 0, len(values)+1)
	seen := false
	for _, x := range values {
		if x == v {
			seen = true
		}
		out = append(out, x)
	}
	if !seen {
		out = append(out, v)
	}
	return out
}
