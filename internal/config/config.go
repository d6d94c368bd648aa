package config

import (
	"os"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Env      string
	LogLevel string

	// Remote citas API.
	APIBaseURL  string
	Token       string
	Role        string
	HTTPTimeout time.Duration

	// Clinic timezone: fechaHora values are civil times in this zone.
	ClinicTimezone string

	// Slot cache (optional; empty RedisAddr disables it).
	RedisAddr     string
	RedisPassword string
	SlotCacheTTL  time.Duration

	// Board watch mode.
	WatchInterval time.Duration
	MetricsAddr   string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		APIBaseURL:     getEnv("CITAS_API_URL", "https://api-farmacia.ngrok.app"),
		Token:          getEnv("CITAS_TOKEN", ""),
		Role:           strings.ToLower(strings.TrimSpace(getEnv("CITAS_ROLE", ""))),
		HTTPTimeout:    getEnvAsDuration("CITAS_HTTP_TIMEOUT", 20*time.Second),
		ClinicTimezone: getEnv("CLINIC_TZ", "America/Mexico_City"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		SlotCacheTTL:   getEnvAsDuration("SLOT_CACHE_TTL", 30*time.Second),
		WatchInterval:  getEnvAsDuration("WATCH_INTERVAL", time.Minute),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9464"),
	}
}

// Location resolves the configured clinic timezone, falling back to UTC
// when the name does not resolve on this host.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
