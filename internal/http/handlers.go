package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/farm-weather-service/internal/client"
	"github.com/kjstillabower/farm-weather-service/internal/degraded"
	"github.com/kjstillabower/farm-weather-service/internal/farms"
	"github.com/kjstillabower/farm-weather-service/internal/lifecycle"
	"github.com/kjstillabower/farm-weather-service/internal/observability"
	"github.com/kjstillabower/farm-weather-service/internal/overload"
	"github.com/kjstillabower/farm-weather-service/internal/service"
	"github.com/kjstillabower/farm-weather-service/internal/traffic"
	"github.com/kjstillabower/farm-weather-service/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	Version              string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.WeatherService
	client         client.WeatherClient
	farms          farms.Source
	traffic        *traffic.Tracker
	healthConfig   *HealthConfig
	degraded       *degraded.Detector
	overload       *overload.Detector
	logger         *zap.Logger
	lookbackDays   int
	now            func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil tracker gets a default one; lookbackDays <= 0
// falls back to validation.DefaultLookbackDays.
func NewHandler(
	weatherService *service.WeatherService,
	client client.WeatherClient,
	farmSource farms.Source,
	tracker *traffic.Tracker,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	lookbackDays int,
) *Handler {
	if tracker == nil {
		tracker = traffic.NewTracker(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lookbackDays <= 0 {
		lookbackDays = validation.DefaultLookbackDays
	}
	h := &Handler{
		weatherService: weatherService,
		client:         client,
		farms:          farmSource,
		traffic:        tracker,
		healthConfig:   healthConfig,
		logger:         logger,
		lookbackDays:   lookbackDays,
		now:            time.Now,
	}
	if healthConfig != nil {
		h.degraded = degraded.NewDetector(tracker, healthConfig.DegradedWindow, healthConfig.DegradedErrorPct)
		h.overload = overload.NewDetector(tracker, healthConfig.OverloadWindow, healthConfig.RateLimitRPS, healthConfig.OverloadThresholdPct)
	}
	return h
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

// GetFarms handles GET /farms.
func (h *Handler) GetFarms(w http.ResponseWriter, r *http.Request) {
	list, err := h.farms.Load(r.Context())
	if err != nil {
		logger := observability.LoggerFromContext(r.Context())
		switch {
		case errors.Is(err, farms.ErrFarmsFileNotFound):
			logger.Warn("farms file not found", zap.String("path", h.farms.Path()))
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Farms file not found", Path: h.farms.Path()})
		case errors.Is(err, farms.ErrNoValidFarms):
			logger.Error("no valid farms in file", zap.String("path", h.farms.Path()))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "No valid farms found"})
		case errors.Is(err, farms.ErrFarmsFileUnreadable):
			logger.Error("farms file unreadable", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to read farms file"})
		default:
			logger.Error("failed to load farms", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load farms", Message: err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetWeather handles GET /weather?lat&lng&date. Without a date it returns current conditions,
// with one the provider's history document for that day.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ParseWeatherQuery(r.URL.Query(), h.window())
	if err != nil {
		h.writeValidationError(w, r, "weather", err)
		return
	}

	var data json.RawMessage
	if q.Date == "" {
		data, err = h.weatherService.GetCurrentWeather(r.Context(), q.Lat, q.Lng)
	} else {
		data, err = h.weatherService.GetHistoricalWeather(r.Context(), q.Lat, q.Lng, q.Date)
	}
	if err != nil {
		h.recordFailure(err)
		writeWeatherError(w, r, err)
		return
	}
	h.traffic.RecordSuccess()
	writeRawJSON(w, http.StatusOK, data)
}

// GetFilteredWeather handles GET /weather/filtered, the aggregated historical range.
func (h *Handler) GetFilteredWeather(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ParseRangeQuery(r.URL.Query(), h.window())
	if err != nil {
		h.writeValidationError(w, r, "weather_filtered", err)
		return
	}

	result, err := h.weatherService.GetHistoricalRange(r.Context(), q)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDateRange) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Start date must be before or equal to end date"})
			return
		}
		h.recordFailure(err)
		writeWeatherError(w, r, err)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) window() validation.Window {
	return validation.Window{LookbackDays: h.lookbackDays, Now: h.now()}
}

// recordFailure counts err against the degraded error rate unless the provider rejected the
// request itself (4xx), which says nothing about service health.
func (h *Handler) recordFailure(err error) {
	var ue *client.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500 {
		h.traffic.RecordSuccess()
		return
	}
	h.traffic.RecordError()
}

// writeValidationError writes a 400 for a rejected query.
func (h *Handler) writeValidationError(w http.ResponseWriter, r *http.Request, route string, err error) {
	observability.ValidationFailuresTotal.WithLabelValues(route).Inc()
	observability.LoggerFromContext(r.Context()).Debug("validation failed",
		zap.String("route", route),
		zap.Error(err))

	switch {
	case errors.Is(err, validation.ErrDateRangeInverted):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Start date must be before or equal to end date"})
	case errors.Is(err, validation.ErrDateOutOfWindow) && route == "weather_filtered":
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("Date range must be within the last %d days", h.lookbackDays),
		})
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Message: validationMessage(err)})
	}
}

// validationMessage strips the sentinel prefix so clients see only the field details.
func validationMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{validation.ErrInvalidQuery, validation.ErrDateOutOfWindow} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}

// writeWeatherError maps a weather fetch failure to a response. Provider errors keep the
// provider's status and body; everything else is a 500.
func writeWeatherError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())

	var ue *client.UpstreamError
	if errors.As(err, &ue) {
		logger.Warn("weather api error",
			zap.Int("status", ue.StatusCode),
			zap.Error(err))
		writeJSON(w, ue.StatusCode, errorResponse{Error: "Weather API error", Message: ue.Body})
		return
	}

	logger.Warn("weather fetch failed",
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch weather data", Message: err.Error()})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{
		"weatherApi": "healthy",
		"farmsFile":  "healthy",
	}
	if result.reason == "api_key_invalid" || result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	}
	if !h.farmsFileReadable() {
		checks["farmsFile"] = "unhealthy"
	}

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"uptime":    lifecycle.Uptime().String(),
		"checks":    checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > degraded error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		h.logger.Warn("health probe failed", zap.Error(err))
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.overload.Overloaded() {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	if h.degraded.Degraded() {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func (h *Handler) farmsFileReadable() bool {
	if h.farms == nil {
		return false
	}
	info, err := os.Stat(h.farms.Path())
	return err == nil && !info.IsDir()
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRawJSON writes an already-encoded JSON document unchanged.
func writeRawJSON(w http.ResponseWriter, status int, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
