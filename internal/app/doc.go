// Package app assembles the forecast API server: configuration, logging,
// tracing, cache, services, middleware chain and routes.
package app
