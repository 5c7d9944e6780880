package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration.
type Config struct {
	// ReconnectTokenSecret is required; Port defaults to 8000
	ReconnectTokenSecret string
	Port                 string

	// Optional variables with defaults
	GoEnv    string
	LogLevel string

	// Pub/sub forwarding is optional: an empty PubSubAddr means Trivion runs
	// single-process with no Redis dependency at all.
	PubSubEnabled  bool
	PubSubAddr     string
	PubSubPassword string

	AllowedOrigins string

	// Rate limits (M = Minute, H = Hour)
	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIRooms    string
	RateLimitAPIMessages string
	RateLimitWSConnect   string
	RateLimitWSAnswer    string
}

// ValidateEnv validates all required environment variables and returns a
// Config object, or every validation failure joined into one error.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.ReconnectTokenSecret = os.Getenv("RECONNECT_TOKEN_SECRET")
	if cfg.ReconnectTokenSecret == "" {
		errs = append(errs, "RECONNECT_TOKEN_SECRET is required")
	} else if len(cfg.ReconnectTokenSecret) < 16 {
		errs = append(errs, fmt.Sprintf("RECONNECT_TOKEN_SECRET must be at least 16 characters (got %d)", len(cfg.ReconnectTokenSecret)))
	}

	cfg.Port = getEnvOrDefault("PORT", "8000")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.PubSubEnabled = os.Getenv("PUBSUB_URL") != ""
	if cfg.PubSubEnabled {
		cfg.PubSubAddr = os.Getenv("PUBSUB_URL")
		if !isValidHostPort(cfg.PubSubAddr) {
			errs = append(errs, fmt.Sprintf("PUBSUB_URL must be in format 'host:port' (got %q)", cfg.PubSubAddr))
		}
		cfg.PubSubPassword = os.Getenv("PUBSUB_PASSWORD")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "60-M")
	cfg.RateLimitAPIMessages = getEnvOrDefault("RATE_LIMIT_API_MESSAGES", "300-M")
	cfg.RateLimitWSConnect = getEnvOrDefault("RATE_LIMIT_WS_CONNECT", "20-M")
	cfg.RateLimitWSAnswer = getEnvOrDefault("RATE_LIMIT_WS_ANSWER", "120-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated")
	slog.Info("configuration",
		"reconnect_token_secret", redactSecret(cfg.ReconnectTokenSecret),
		"port", cfg.Port,
		"pubsub_enabled", cfg.PubSubEnabled,
		"pubsub_addr", cfg.PubSubAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"rate_limit_api_global", cfg.RateLimitAPIGlobal,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
