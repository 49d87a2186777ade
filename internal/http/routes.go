package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/farm-weather-service/internal/observability"
)

// RouteConfig configures RegisterRoutes.
type RouteConfig struct {
	// APIPrefix is prepended to the farm and weather routes, e.g. /api.
	APIPrefix string
	// RequestTimeout bounds GET {prefix}/weather.
	RequestTimeout time.Duration
	// RangeTimeout bounds GET {prefix}/weather/filtered, which makes one upstream call per day.
	RangeTimeout time.Duration
	// Limiter rate-limits inbound weather requests; nil disables limiting.
	Limiter *rate.Limiter
	// FrontendDir holds built SPA assets; empty disables static serving.
	FrontendDir string
}

// RegisterRoutes wires middleware, API routes, /health, /metrics and the optional SPA fallback.
func RegisterRoutes(router *mux.Router, h *Handler, logger *zap.Logger, cfg RouteConfig) {
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix(cfg.APIPrefix).Subrouter()
	api.HandleFunc("/farms", h.GetFarms).Methods(http.MethodGet)

	limit := RateLimitMiddleware(cfg.Limiter, h.traffic)
	api.Handle("/weather/filtered",
		limit(TimeoutMiddleware(cfg.RangeTimeout)(http.HandlerFunc(h.GetFilteredWeather)))).
		Methods(http.MethodGet)
	api.Handle("/weather",
		limit(TimeoutMiddleware(cfg.RequestTimeout)(http.HandlerFunc(h.GetWeather)))).
		Methods(http.MethodGet)
	// mux skips router middleware for NotFoundHandler matches.
	api.NotFoundHandler = CorrelationIDMiddleware(logger)(MetricsMiddleware(http.HandlerFunc(apiNotFound)))

	if cfg.FrontendDir != "" {
		router.PathPrefix("/").Handler(NewSPAHandler(cfg.FrontendDir, cfg.APIPrefix)).Methods(http.MethodGet, http.MethodHead)
	}
}

func apiNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found", Path: r.URL.Path})
}
