// Package config provides configuration loading for the PCoIP connection broker.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MapperKind selects which Mapper implementation the broker constructs at
// startup.
type MapperKind string

const (
	MapperSimple     MapperKind = "simple"
	MapperWebservice MapperKind = "webservice"
)

// Config holds all configuration values for the broker.
type Config struct {
	// Server settings
	Port int
	Host string

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text

	// Session settings
	CookieName        string
	SessionTTL        time.Duration
	SessionBackend    string // "memory" or "sqlite"
	SessionDBPath     string
	ClientLogIDHeader string

	// Agent client settings
	AgentPort          int
	AgentTimeout       time.Duration
	AgentTLSSkipVerify bool

	// HTTP server timeouts
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Mapper settings
	Mapper MapperKind

	// Simple mapper settings: static username -> (password hash, resources)
	SimpleUsername     string
	SimplePasswordHash string
	SimpleResources    []string // "id:hostname[:name]" entries

	// Webservice mapper settings
	WebserviceBaseURL string
	WebserviceTimeout time.Duration

	// Metrics
	MetricsEnabled bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("BROKER_PORT", 8443),
		Host: getEnv("BROKER_HOST", "0.0.0.0"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		CookieName:        getEnv("COOKIE_NAME", "JSESSIONID"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionBackend:    getEnv("SESSION_BACKEND", "memory"),
		SessionDBPath:     getEnv("SESSION_DB_PATH", "/var/lib/pcoip-broker/sessions.db"),
		ClientLogIDHeader: getEnv("CLIENT_LOG_ID_HEADER", "CLIENT-LOG-ID"),

		AgentPort:          getEnvInt("AGENT_PORT", 60443),
		AgentTimeout:       getEnvDuration("AGENT_TIMEOUT", 10*time.Second),
		AgentTLSSkipVerify: getEnvBool("AGENT_TLS_SKIP_VERIFY", true),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),

		Mapper: MapperKind(getEnv("MAPPER", "simple")),

		SimpleUsername:     getEnv("SIMPLE_MAPPER_USERNAME", ""),
		SimplePasswordHash: getEnv("SIMPLE_MAPPER_PASSWORD_HASH", ""),
		SimpleResources:    getEnvStringSlice("SIMPLE_MAPPER_RESOURCES", nil),

		WebserviceBaseURL: getEnv("WEBSERVICE_MAPPER_URL", ""),
		WebserviceTimeout: getEnvDuration("WEBSERVICE_MAPPER_TIMEOUT", 10*time.Second),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	switch cfg.Mapper {
	case MapperSimple, MapperWebservice:
	default:
		return nil, fmt.Errorf("MAPPER must be %q or %q, got %q", MapperSimple, MapperWebservice, cfg.Mapper)
	}

	if cfg.Mapper == MapperSimple {
		if cfg.SimpleUsername == "" || cfg.SimplePasswordHash == "" {
			return nil, fmt.Errorf("SIMPLE_MAPPER_USERNAME and SIMPLE_MAPPER_PASSWORD_HASH are required when MAPPER=simple")
		}
	}

	if cfg.Mapper == MapperWebservice && cfg.WebserviceBaseURL == "" {
		return nil, fmt.Errorf("WEBSERVICE_MAPPER_URL is required when MAPPER=webservice")
	}

	switch cfg.SessionBackend {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", "memory", "sqlite", cfg.SessionBackend)
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvStringSlice returns a slice from a comma-separated environment variable.
func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
