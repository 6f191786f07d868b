// Package http holds the HTTP handlers for the forecast API: prediction
// serving, hierarchy inspection, accuracy reporting and health checks.
package http
