package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	LogDir       string
	JWTSecret    string

	// Audit engine knobs.
	Workers        int
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration

	// Drift policy: lines-changed at or above the threshold classify high.
	DriftThreshold int
	DriftCron      string

	// License default used when no license settings are stored.
	LicenseMaxDevices int
}

// Load reads env vars and falls back to defaults so the server can boot with
// zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("NW_ENV", "development"),
		HTTPPort:     getEnv("NW_HTTP_PORT", "8080"),
		DatabasePath: getEnv("NW_DB_PATH", filepath.Join("data", "netwarden.db")),
		LogDir:       getEnv("NW_LOG_DIR", filepath.Join("data", "logs")),
		JWTSecret:    getEnv("NW_JWT_SECRET", ""),

		Workers:        getEnvInt("NW_AUDIT_WORKERS", 8),
		ConnectTimeout: getEnvDuration("NW_CONNECT_TIMEOUT", 15*time.Second),
		RetryAttempts:  getEnvInt("NW_RETRY_ATTEMPTS", 3),
		RetryDelay:     getEnvDuration("NW_RETRY_DELAY", 500*time.Millisecond),
		RetryMaxDelay:  getEnvDuration("NW_RETRY_MAX_DELAY", 5*time.Second),

		DriftThreshold: getEnvInt("NW_DRIFT_THRESHOLD", 20),
		DriftCron:      getEnv("NW_DRIFT_CRON", "@hourly"),

		LicenseMaxDevices: getEnvInt("NW_LICENSE_MAX_DEVICES", 100),
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
