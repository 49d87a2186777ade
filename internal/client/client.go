package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/farm-weather-service/internal/observability"
)

// WeatherClient fetches raw weather documents from the upstream provider.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, lat, lng float64) (json.RawMessage, error)
	GetHistoricalWeather(ctx context.Context, lat, lng float64, date string) (json.RawMessage, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRequestFailed   = errors.New("weather request failed")
)

// maxErrorBody caps how much of an upstream error body is kept for pass-through.
const maxErrorBody = 64 << 10

// UpstreamError is returned when the provider answers with a non-2xx status.
// Body is the provider's response body, passed through to API callers.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", ErrUpstreamFailure, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamFailure
}

const (
	endpointCurrent = "current"
	endpointHistory = "history"
)

// WeatherAPIClient talks to WeatherAPI.com (current.json and history.json).
type WeatherAPIClient struct {
	apiKey  string
	baseURL string
	lang    string
	timeout time.Duration
	client  *http.Client
}

func NewWeatherAPIClient(apiKey, baseURL, lang string, timeout time.Duration) (*WeatherAPIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if lang == "" {
		lang = "en"
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
	}

	return &WeatherAPIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    lang,
		timeout: timeout,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

// GetCurrentWeather returns the provider's current.json document for the coordinates.
func (c *WeatherAPIClient) GetCurrentWeather(ctx context.Context, lat, lng float64) (json.RawMessage, error) {
	return c.call(ctx, endpointCurrent, "/current.json", coordinates(lat, lng), nil)
}

// GetHistoricalWeather returns the provider's history.json document for the coordinates and
// date (YYYY-MM-DD).
func (c *WeatherAPIClient) GetHistoricalWeather(ctx context.Context, lat, lng float64, date string) (json.RawMessage, error) {
	return c.call(ctx, endpointHistory, "/history.json", coordinates(lat, lng), url.Values{"dt": {date}})
}

func (c *WeatherAPIClient) call(ctx context.Context, endpoint, path, q string, extra url.Values) (json.RawMessage, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, q, extra)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, c.fail(fmt.Errorf("%w: request timeout: %w", ErrRequestFailed, err))
		}
		return nil, c.fail(fmt.Errorf("%w: http request failed: %w", ErrRequestFailed, err))
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, c.fail(err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(fmt.Errorf("%w: read response body: %w", ErrRequestFailed, err))
	}
	if !json.Valid(body) {
		return nil, c.fail(fmt.Errorf("%w: parse response: body is not valid JSON", ErrRequestFailed))
	}

	return json.RawMessage(body), nil
}

func (c *WeatherAPIClient) fail(err error) error {
	observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	return err
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, path, q string, extra url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", q)
	params.Set("lang", c.lang)
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse converts any non-2xx response into an *UpstreamError carrying the body.
func (c *WeatherAPIClient) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
}

// coordinates formats lat/lng as the provider's q parameter ("lat,lng").
func coordinates(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey makes one current.json call to confirm the key is accepted. Used by /health.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "/current.json", "London", nil)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	// WeatherAPI.com answers 401 for a missing/invalid key and 403 for a disabled one.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: API key is invalid or disabled", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
