package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects everything the gateway and client consume from the
// environment. The store and identity services are external collaborators;
// only their base URLs live here.
type Config struct {
	Port        string
	Environment string

	GatewayWSURL    string
	StoreBaseURL    string
	IdentityBaseURL string

	AMQPURL      string
	AMQPExchange string

	OTLPEndpoint string

	RedisAddr           string
	ParticipantCacheTTL time.Duration

	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ConnectTimeout       time.Duration

	DebugRoutes bool
}

// Load reads configuration from the environment. In production any
// configured ws:// or http:// URL is upgraded to its secure scheme.
func Load() Config {
	cfg := Config{
		Port:        getEnv("PORT", "8083"),
		Environment: getEnv("ENVIRONMENT", "development"),

		GatewayWSURL:    getEnv("GATEWAY_WS_URL", "ws://localhost:8083"),
		StoreBaseURL:    getEnv("STORE_BASE_URL", "http://localhost:8080"),
		IdentityBaseURL: getEnv("IDENTITY_BASE_URL", "http://localhost:8081"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "platform_events"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		RedisAddr:           getEnv("REDIS_ADDR", ""),
		ParticipantCacheTTL: getDuration("PARTICIPANT_CACHE_TTL", 5*time.Minute),

		ReconnectMaxAttempts: getInt("RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectBaseDelay:   getDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:    getDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		ConnectTimeout:       getDuration("CONNECT_TIMEOUT", 10*time.Second),

		DebugRoutes: getBool("ENABLE_DEBUG_ROUTES", false),
	}

	if cfg.IsProduction() {
		cfg.GatewayWSURL = UpgradeScheme(cfg.GatewayWSURL)
		cfg.StoreBaseURL = UpgradeScheme(cfg.StoreBaseURL)
		cfg.IdentityBaseURL = UpgradeScheme(cfg.IdentityBaseURL)
	}

	return cfg
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// UpgradeScheme rewrites insecure URL schemes to their TLS counterparts.
func UpgradeScheme(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ws://"):
		return "wss://" + strings.TrimPrefix(raw, "ws://")
	case strings.HasPrefix(raw, "http://"):
		return "https://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
