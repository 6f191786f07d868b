// Package pipeline orchestrates the batch forecasting run as an ordered
// sequence of steps: preprocess, features, hierarchy, cross-validation,
// reconciliation and reporting. Steps share a RunState that carries the
// intermediate artifacts between them.
package pipeline
