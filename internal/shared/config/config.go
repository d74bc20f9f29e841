package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultPluggyBaseURL = "https://api.pluggy.ai"

type Config struct {
	Pluggy     PluggyConfig
	Database   DatabaseConfig
	Forwarding ForwardingConfig
	Sync       SyncConfig
	Log        LogConfig
	Telemetry  TelemetryConfig
}

// PluggyConfig holds the client credentials and the item to sync.
type PluggyConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ItemID       string
	Timeout      time.Duration
}

type DatabaseConfig struct {
	URL string
}

type ForwardingConfig struct {
	TargetEndpoint string
	Timeout        time.Duration
}

type SyncConfig struct {
	// Workers bounds the per-account transaction fetches; 1 keeps them sequential.
	Workers int
}

type LogConfig struct {
	Level  string
	Format string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {
	httpTimeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}

	workers, err := strconv.Atoi(getEnv("SYNC_WORKERS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_WORKERS: %w", err)
	}
	if workers < 1 {
		return nil, fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", workers)
	}

	logFormat := strings.ToLower(getEnv("LOG_FORMAT", "console"))
	if logFormat != "console" && logFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be console or json, got %q", logFormat)
	}

	cfg := &Config{
		Pluggy: PluggyConfig{
			BaseURL:      strings.TrimRight(getEnv("PLUGGY_BASE_URL", defaultPluggyBaseURL), "/"),
			ClientID:     os.Getenv("CLIENT_ID"),
			ClientSecret: os.Getenv("CLIENT_SECRET"),
			ItemID:       os.Getenv("ITEM_ID"),
			Timeout:      httpTimeout,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Forwarding: ForwardingConfig{
			TargetEndpoint: os.Getenv("TARGET_ENDPOINT"),
			Timeout:        httpTimeout,
		},
		Sync: SyncConfig{
			Workers: workers,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: logFormat,
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "pluggysync"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every required setting that is empty in a single error.
// It is exported so callers that override fields after Load (CLI flags) can re-check.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"CLIENT_ID", c.Pluggy.ClientID},
		{"CLIENT_SECRET", c.Pluggy.ClientSecret},
		{"ITEM_ID", c.Pluggy.ItemID},
		{"DATABASE_URL", c.Database.URL},
		{"TARGET_ENDPOINT", c.Forwarding.TargetEndpoint},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync workers must be at least 1, got %d", c.Sync.Workers)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
