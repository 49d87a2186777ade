package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/farm-weather-service/internal/client"
	"github.com/kjstillabower/farm-weather-service/internal/config"
	"github.com/kjstillabower/farm-weather-service/internal/farms"
	httphandler "github.com/kjstillabower/farm-weather-service/internal/http"
	"github.com/kjstillabower/farm-weather-service/internal/lifecycle"
	"github.com/kjstillabower/farm-weather-service/internal/observability"
	"github.com/kjstillabower/farm-weather-service/internal/service"
	"github.com/kjstillabower/farm-weather-service/internal/traffic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewWeatherAPIClient(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPILang,
		cfg.WeatherAPITimeout,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherService := service.NewWeatherService(weatherClient)

	farmSource := farms.NewFileSource(cfg.FarmsFile, logger)
	if _, err := os.Stat(cfg.FarmsFile); err != nil {
		logger.Warn("farms file not accessible at startup", zap.String("path", cfg.FarmsFile), zap.Error(err))
	}

	tracker := traffic.NewTracker(trackerRetention(cfg))
	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		Version:              version,
	}

	limiter := newLimiter(cfg)
	handler := httphandler.NewHandler(weatherService, weatherClient, farmSource, tracker, healthConfig, logger, cfg.LookbackDays)

	router := mux.NewRouter()
	httphandler.RegisterRoutes(router, handler, logger, httphandler.RouteConfig{
		APIPrefix:      cfg.APIPrefix,
		RequestTimeout: cfg.RequestTimeout,
		RangeTimeout:   cfg.RangeRequestTimeout,
		Limiter:        limiter,
		FrontendDir:    cfg.FrontendDir,
	})
	if cfg.FrontendDir != "" {
		logger.Info("serving frontend assets", zap.String("dir", cfg.FrontendDir))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("api_prefix", cfg.APIPrefix),
			zap.String("farms_file", cfg.FarmsFile))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// trackerRetention keeps outcomes long enough for both health windows.
func trackerRetention(cfg *config.Config) time.Duration {
	if cfg.OverloadWindow > cfg.DegradedWindow {
		return cfg.OverloadWindow
	}
	return cfg.DegradedWindow
}

// newLimiter returns the inbound weather-route limiter, or nil when rate_limit_rps is zero.
func newLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}
