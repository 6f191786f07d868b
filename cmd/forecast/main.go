// Command forecast runs the batch forecasting pipeline: preprocess raw
// CSVs, build features, derive the hierarchy, cross-validate the baseline,
// reconcile forecasts and write reports.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sfcli/internal/config"
	"sfcli/internal/observability"
	"sfcli/internal/pipeline"
)

const version = "1.0.0"

func main() {
	rawDir := flag.String("raw", "", "raw data directory (overrides SF_RAW_DIR)")
	reportsDir := flag.String("reports", "", "reports output directory (overrides SF_REPORTS_DIR)")
	horizon := flag.Int("horizon", 0, "forecast horizon in days (overrides SF_FORECAST_HORIZON)")
	splits := flag.Int("splits", 0, "walk-forward CV splits (overrides SF_FORECAST_CV_SPLITS)")
	stepTimeout := flag.Duration("step-timeout", 0, "per-step timeout (default 30m)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *rawDir != "" {
		cfg.Paths.RawDir = *rawDir
	}
	if *reportsDir != "" {
		cfg.Paths.ReportsDir = *reportsDir
	}
	if *horizon > 0 {
		cfg.Forecast.Horizon = *horizon
	}
	if *splits > 0 {
		cfg.Forecast.CVSplits = *splits
	}

	logger := observability.InitializeLogger(cfg.Logging)

	if err := cfg.EnsureDirs(); err != nil {
		logger.Error("Failed to create directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := pipeline.DefaultRegistry(cfg, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}

	manager := pipeline.NewManager(registry, logger)
	if *stepTimeout > 0 {
		manager.SetStepTimeout(*stepTimeout)
	}

	logger.Info("Forecast pipeline starting",
		"version", version,
		"raw_dir", cfg.Paths.RawDir,
		"reports_dir", cfg.Paths.ReportsDir,
		"horizon", cfg.Forecast.Horizon)

	start := time.Now()
	state, err := manager.Run(ctx)
	if err != nil {
		logger.Error("Pipeline failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Pipeline finished",
		"run_id", state.RunID,
		"duration", time.Since(start).String(),
		"best_method", state.BestMethod,
		"mean_rmsle", state.CVResult.MeanRMSLE)
}
