// Package features loads the raw store-sales panel and builds the
// leakage-safe feature matrix consumed by the model and evaluation layers.
//
// Every derived statistic obeys strict shift discipline: a feature attached
// to time t is computed only from observations strictly before t, so no
// training row can see same-day or future information. Rows whose
// maximum-horizon lag is still undefined after construction are dropped —
// they cannot support a model trained to predict that horizon.
package features
