package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort   string
	APIPrefix    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherAPILang    string

	RequestTimeout      time.Duration
	RangeRequestTimeout time.Duration

	FarmsFile    string
	LookbackDays int

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow       time.Duration
	DegradedErrorPct     int
	OverloadWindow       time.Duration
	OverloadThresholdPct int

	FrontendDir string
}

type fileConfig struct {
	Server struct {
		Port         string `yaml:"port"`
		APIPrefix    string `yaml:"api_prefix"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Lang    string `yaml:"lang"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout      string `yaml:"timeout"`
		RangeTimeout string `yaml:"range_timeout"`
	} `yaml:"request"`

	Farms struct {
		File string `yaml:"file"`
	} `yaml:"farms"`

	Validation struct {
		LookbackDays int `yaml:"lookback_days"`
	} `yaml:"validation"`

	Reliability struct {
		RateLimitRPS   *int `yaml:"rate_limit_rps"`
		RateLimitBurst int  `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"lifecycle"`

	Frontend struct {
		Dir string `yaml:"dir"`
	} `yaml:"frontend"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first; it never overrides variables already set.
// API key comes from WEATHER_API_KEY env or secrets file. Call from project root.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("SERVER_PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.APIPrefix = normalizePrefix(fc.Server.APIPrefix)
	cfg.ReadTimeout = parseDuration(fc.Server.ReadTimeout, 10*time.Second)
	cfg.WriteTimeout = parseDuration(fc.Server.WriteTimeout, 150*time.Second)

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "http://api.weatherapi.com/v1"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.WeatherAPILang = strings.TrimSpace(fc.WeatherAPI.Lang)
	if cfg.WeatherAPILang == "" {
		cfg.WeatherAPILang = "en"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.RangeRequestTimeout = parseDuration(fc.Request.RangeTimeout, 120*time.Second)

	cfg.FarmsFile = strings.TrimSpace(os.Getenv("FARMS_FILE"))
	if cfg.FarmsFile == "" {
		cfg.FarmsFile = strings.TrimSpace(fc.Farms.File)
	}
	if cfg.FarmsFile == "" {
		cfg.FarmsFile = filepath.Join("data", "farms.json")
	}

	cfg.LookbackDays = fc.Validation.LookbackDays
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 365
	}

	// Unset means 10 rps; an explicit 0 or less disables inbound limiting.
	cfg.RateLimitRPS = 10
	if fc.Reliability.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.Reliability.RateLimitRPS
	}
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 25*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 20
	}
	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}

	cfg.FrontendDir = strings.TrimSpace(fc.Frontend.Dir)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey returns WEATHER_API_KEY from the environment, falling back to config/secrets.yaml.
func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// normalizePrefix returns prefix with a single leading slash and no trailing slash; empty means /api.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "/api"
	}
	return "/" + prefix
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// RangeTimeoutFloor is the shortest range deadline that lets the widest allowed range
// (lookbackDays+1 days, fetched one at a time) finish when every call runs to apiTimeout,
// plus one apiTimeout of slack.
func RangeTimeoutFloor(lookbackDays int, apiTimeout time.Duration) time.Duration {
	if lookbackDays <= 0 {
		lookbackDays = 365
	}
	return time.Duration(lookbackDays+2) * apiTimeout
}

// validate performs post-load validation of configuration values.
// Request timeouts are raised so each covers at least one upstream call, the range timeout
// is raised to RangeTimeoutFloor, and the server write timeout is raised to outlast the
// longest request.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.RangeRequestTimeout < cfg.RequestTimeout {
		cfg.RangeRequestTimeout = cfg.RequestTimeout
	}
	if floor := RangeTimeoutFloor(cfg.LookbackDays, cfg.WeatherAPITimeout); cfg.RangeRequestTimeout < floor {
		cfg.RangeRequestTimeout = floor
	}
	if cfg.WriteTimeout <= cfg.RangeRequestTimeout {
		cfg.WriteTimeout = cfg.RangeRequestTimeout + 5*time.Second
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle.degraded_error_pct must be between 1 and 100, got %d", cfg.DegradedErrorPct)
	}
	if cfg.OverloadThresholdPct > 200 {
		return fmt.Errorf("lifecycle.overload_threshold_pct must be between 1 and 200, got %d", cfg.OverloadThresholdPct)
	}
	return nil
}
