// Package model defines the training and prediction contracts the
// cross-validation and reconciliation layers drive, plus a seasonal naive
// baseline that any candidate model has to beat.
package model

import (
	"context"

	"sfcli/internal/features"
)

// Trainable is a model that can be fit on a training panel. Validation
// data is passed through for models that use it for early stopping; the
// baseline ignores it.
type Trainable interface {
	Name() string
	Train(ctx context.Context, train, valid *features.Panel) (Predictor, error)
}

// Predictor scores a panel, returning one prediction per row in row order
type Predictor interface {
	Predict(ctx context.Context, panel *features.Panel) ([]float64, error)
}
