// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DetectorConfig holds the default tuning for rolling trend detection.
// Callers can override per request; these are the service-wide defaults.
type DetectorConfig struct {
	WindowSize      int     // sliding regression window, in points
	MinLogSlope     float64 // minimum log-scale slope to count a window as rising
	Smoothing       bool    // apply centered moving average before analysis
	SmoothingWindow int     // width of the smoothing window
}

// OrchestratorConfig holds defaults for dashboard orchestration runs.
type OrchestratorConfig struct {
	MaxIterations int           // iteration budget per run
	FetchTimeout  time.Duration // per-signal fetch timeout
	RunTimeout    time.Duration // optional whole-run deadline (0 = none)
	FetchWorkers  int           // concurrent fetches within one FETCHING step
}

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	EpidataBaseURL string // Delphi COVIDcast API endpoint

	Detector     DetectorConfig
	Orchestrator OrchestratorConfig

	SurveillanceEnabled  bool
	SurveillanceSchedule string // cron expression (with seconds field)
	DefaultGeoType       string
	DefaultGeoValues     []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("EPIWATCH_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("EPIWATCH_PORT", 8001),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		EpidataBaseURL: getEnv("EPIDATA_BASE_URL", "https://api.delphi.cmu.edu/epidata/covidcast/"),
		Detector: DetectorConfig{
			WindowSize:      getEnvAsInt("DETECTOR_WINDOW_SIZE", 7),
			MinLogSlope:     getEnvAsFloat("DETECTOR_MIN_LOG_SLOPE", 0.01),
			Smoothing:       getEnvAsBool("DETECTOR_SMOOTHING", true),
			SmoothingWindow: getEnvAsInt("DETECTOR_SMOOTHING_WINDOW", 3),
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations: getEnvAsInt("ORCHESTRATOR_MAX_ITERATIONS", 8),
			FetchTimeout:  getEnvAsDuration("ORCHESTRATOR_FETCH_TIMEOUT", 30*time.Second),
			RunTimeout:    getEnvAsDuration("ORCHESTRATOR_RUN_TIMEOUT", 0),
			FetchWorkers:  getEnvAsInt("ORCHESTRATOR_FETCH_WORKERS", 4),
		},
		SurveillanceEnabled:  getEnvAsBool("SURVEILLANCE_ENABLED", true),
		SurveillanceSchedule: getEnv("SURVEILLANCE_SCHEDULE", "0 0 */6 * * *"), // every 6 hours
		DefaultGeoType:       getEnv("DEFAULT_GEO_TYPE", "nation"),
		DefaultGeoValues:     nil, // empty = all geographies for the geo type
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Detector.WindowSize < 2 {
		return fmt.Errorf("detector window size must be >= 2, got %d", c.Detector.WindowSize)
	}
	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("orchestrator max iterations must be >= 1, got %d", c.Orchestrator.MaxIterations)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
