// Command server runs the forecast API: prediction serving from pipeline
// artifacts, hierarchy and accuracy inspection, health checks and
// Prometheus metrics.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sfcli/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Bootstrap(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
