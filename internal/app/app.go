package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sfcli/internal/cache"
	"sfcli/internal/config"
	custommw "sfcli/internal/middleware"
	"sfcli/internal/observability"
	"sfcli/internal/services"
	handlers "sfcli/internal/transport/http"
)

// Version is the served application version
const Version = "1.0.0"

// Application is the server's dependency container
type Application struct {
	Config          *config.Config
	Logger          *slog.Logger
	Router          *chi.Mux
	Server          *http.Server
	Cache           *cache.PredictionCache
	ForecastService *services.ForecastService
	HealthService   *services.HealthService
	TracerProvider  *observability.TracerProvider
	registry        *prometheus.Registry
}

// NewApplication builds the application from configuration
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := observability.InitializeLogger(cfg.Logging)
	logger.InfoContext(ctx, "application starting",
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port))

	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	tp, err := observability.InitTracing(ctx, Version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	app := &Application{
		Config:         cfg,
		Logger:         logger,
		TracerProvider: tp,
		registry:       prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Cache.Enabled {
		predCache, err := cache.New(ctx, cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		app.Cache = predCache
	}

	app.ForecastService = services.NewForecastService(cfg, app.Cache, logger)
	app.HealthService = services.NewHealthService(Version, cfg.Paths, app.ForecastService, app.Cache, logger)

	app.setupRouter()
	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.Compress(5))
	r.Use(custommw.NewMetrics(a.registry).Handler)

	if a.Config.Security.EnableCORS {
		r.Use(custommw.CORS(custommw.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}
	if a.Config.Security.RateLimit.Enabled {
		r.Use(custommw.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	forecastHandler := handlers.NewForecastHandler(a.ForecastService, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)

	r.Get("/health", healthHandler.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		r.Post("/predict", forecastHandler.Predict)
		r.Post("/predict/batch", forecastHandler.PredictBatch)
		r.Get("/hierarchy", forecastHandler.Hierarchy)
		r.Get("/accuracy", forecastHandler.Accuracy)

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommw.AdminAuth(a.Config.Security.AdminKeyHash, a.Logger))
			r.Post("/reload", forecastHandler.Reload)
		})
	})

	// Metrics endpoint stays outside the middleware stack's rate limiter
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.Router = r
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down",
		slog.Duration("grace_period", a.Config.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("cache close failed", slog.String("error", err.Error()))
		}
	}
	if err := a.TracerProvider.Shutdown(context.Background()); err != nil {
		a.Logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// startupTimeout bounds the application boot sequence
const startupTimeout = 30 * time.Second

// Bootstrap builds and runs the application until interrupted
func Bootstrap(ctx context.Context) error {
	bootCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	app, err := NewApplication(bootCtx)
	cancel()
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
