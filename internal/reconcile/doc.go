// Package reconcile turns incoherent per-level forecasts into forecasts
// that add up across the hierarchy, and scores the competing methods.
//
// Four methods are supported: bottom-up aggregation, top-down distribution
// by historical proportions, and MinTrace generalized least squares with
// either an identity or a shrunk diagonal error covariance. A consistency
// checker and a per-level metrics evaluator close the loop by verifying
// coherence and picking the best method.
package reconcile
