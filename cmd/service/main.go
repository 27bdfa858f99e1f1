package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-query-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-query-service/internal/config"
	httphandler "github.com/kjstillabower/climate-query-service/internal/http"
	"github.com/kjstillabower/climate-query-service/internal/lifecycle"
	"github.com/kjstillabower/climate-query-service/internal/observability"
	"github.com/kjstillabower/climate-query-service/internal/service"
	"github.com/kjstillabower/climate-query-service/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	envErr := godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("no .env file loaded", zap.Error(envErr))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	climateStore, err := store.Open(startCtx, cfg)
	if err != nil {
		startCancel()
		logger.Fatal("open dataset", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	if err := climateStore.VerifySchema(startCtx); err != nil {
		startCancel()
		_ = climateStore.Close()
		logger.Fatal("dataset schema", zap.Error(err))
	}
	startCancel()
	logger.Info("dataset opened",
		zap.String("driver", cfg.DatabaseDriver),
		zap.String("window_start", cfg.WindowStart),
		zap.String("reference_date", cfg.ReferenceDate.Format("2006-01-02")))

	cb := newStoreBreaker(cfg, logger)

	climateService := service.NewClimateService(climateStore, cb, cfg.WindowStart)
	handler := httphandler.NewHandler(climateService, &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		PingTimeout:      cfg.RequestTimeout,
		Version:          version,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler, logger, cfg.RequestTimeout),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)

	inFlight := httphandler.InFlightCount()
	observability.RecordShutdownInFlight(inFlight)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := climateStore.Close(); err != nil {
		logger.Error("dataset close", zap.Error(err))
	}

	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// newStoreBreaker returns the breaker guarding dataset queries, or nil when disabled.
func newStoreBreaker(cfg *config.Config, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return nil
	}
	const component = "store"
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		IsFailure:        service.IsBreakerFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
			logger.Info("circuit breaker transition",
				zap.String("component", component),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(component).Set(0)
	logger.Info("circuit breaker enabled",
		zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
		zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	return cb
}
