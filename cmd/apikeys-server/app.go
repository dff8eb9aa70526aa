package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apikeys "github.com/abrahamahn/go-apikeys"
)

// App is the assembled service.
type App struct {
	Config   *ServerConfig
	Logger   *zap.Logger
	Storage  *Storage
	Manager  *apikeys.APIKeyManager
	Sessions *apikeys.JWTSessionAuthenticator
	Metrics  *apikeys.PrometheusMetrics

	tracerProvider *sdktrace.TracerProvider
}

// NewLogger builds a production zap logger at level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", apikeys.ErrInvalidConfiguration, level)
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	return zapConfig.Build()
}

// NewApp wires storage, observability, sessions and the manager.
func NewApp(ctx context.Context, cfg *ServerConfig, logger *zap.Logger) (*App, error) {
	storage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app, err := newAppWithStorage(cfg, storage, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	return app, nil
}

func newAppWithStorage(cfg *ServerConfig, storage *Storage, logger *zap.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Storage: storage,
	}

	sessions, err := apikeys.NewJWTSessionAuthenticator([]byte(cfg.Auth.SessionSecret), cfg.Auth.SessionIssuer, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, err
	}
	app.Sessions = sessions

	obsConfig := apikeys.NewObservabilityConfig()
	obsConfig.EnableAudit = true
	if cfg.Metrics.Enabled {
		app.Metrics = apikeys.NewPrometheusMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
		obsConfig.EnableMetrics = true
		obsConfig.MetricsProvider = app.Metrics
	}
	if cfg.Tracing.Enabled {
		app.tracerProvider = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(app.tracerProvider)
		obsConfig.EnableTracing = true
		obsConfig.TracingProvider = apikeys.NewOTelTracingProvider(app.tracerProvider)
	}

	libConfig := cfg.LibraryConfig()
	libConfig.Repository = storage.Repository
	libConfig.CounterStore = storage.CounterStore
	libConfig.Logger = logger
	libConfig.SessionAuthenticator = sessions
	libConfig.Observability = obsConfig

	manager, err := apikeys.New(libConfig)
	if err != nil {
		return nil, err
	}
	app.Manager = manager
	return app, nil
}

// Close drains pending work and releases backends.
func (a *App) Close(ctx context.Context) error {
	a.Manager.Close()
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.Logger.Warn("Tracer provider shutdown failed", zap.Error(err))
		}
	}
	return a.Storage.Close()
}
