// Package services holds the business logic behind the HTTP layer: the
// forecast service that serves reconciled predictions from pipeline
// artifacts, and the health service backing the health endpoints.
package services
