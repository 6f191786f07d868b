// Package hierarchy builds the aggregation structure for hierarchical
// store-sales forecasting.
//
// The hierarchy has four levels, most aggregate first:
//
//   - Total: one node, the sum of all sales
//   - Store: one node per store
//   - Family: one node per product family
//   - Bottom: one node per store × family series
//
// The package derives a deterministic Spec from raw dimension values, builds
// the summing matrix S that maps bottom-level values to every level, checks
// S's structural invariants, and persists the artifacts consumed by the
// reconciliation engine and the serving layer.
package hierarchy
