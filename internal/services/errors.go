package services

import "errors"

var (
	// ErrArtifactsNotLoaded means the service has no forecast artifacts
	// yet, typically because the pipeline has not run
	ErrArtifactsNotLoaded = errors.New("forecast artifacts not loaded")

	// ErrSeriesNotFound means the requested series is not in the hierarchy
	ErrSeriesNotFound = errors.New("series not found in hierarchy")

	// ErrMethodNotFound means the requested reconciliation method has no
	// column in the forecast artifacts
	ErrMethodNotFound = errors.New("reconciliation method not found")

	// ErrDateNotForecast means the requested date is outside the forecast
	// window
	ErrDateNotForecast = errors.New("no forecast for requested date")

	// ErrMetricsNotFound means no cross-validation metrics artifact exists
	ErrMetricsNotFound = errors.New("cross-validation metrics not found")
)
