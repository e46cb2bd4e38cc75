package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	Debug              bool
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64

	TelegramBotToken      string
	TelegramChatID        string
	TelegramAPIBaseURL    string
	SessionInitDataMaxAge time.Duration
	SiteURL               string
	FreeShippingThreshold decimal.NullDecimal

	CatalogCacheTTL     time.Duration
	CatalogDefaultLimit int
	CatalogMaxLimit     int
	IdempotencyTTL      time.Duration
	CheckoutLockTTL     time.Duration

	ThrottleEnabled  bool
	ThrottleUserRate string
	ThrottleAnonRate string
	AutobanEnabled   bool
	AutobanThreshold int
	AutobanWindow    time.Duration
	AutobanDuration  time.Duration

	WorkerConcurrency int

	LogFormat          string
	LogLevel           string
	MetricsEnabled     bool
	MetricsNamespace   string
	MetricsBucketsMS   string
	TracingEnabled     bool
	TracingExporter    string
	OTLPEndpoint       string
	TracingSampling    float64
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string
	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		Debug:              parseBool(k.String("APP_DEBUG"), false),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),

		TelegramBotToken:      strings.TrimSpace(k.String("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:        strings.TrimSpace(k.String("TELEGRAM_CHAT_ID")),
		TelegramAPIBaseURL:    valueOrDefault(k.String("TELEGRAM_API_BASE_URL"), "https://api.telegram.org"),
		SessionInitDataMaxAge: parseDuration(k.String("SESSION_INIT_DATA_MAX_AGE"), "24h"),
		SiteURL:               strings.TrimRight(strings.TrimSpace(k.String("SITE_URL")), "/"),

		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CheckoutLockTTL:     parseDuration(k.String("CHECKOUT_LOCK_TTL"), "10s"),

		ThrottleEnabled:  parseBool(k.String("THROTTLE_ENABLED"), true),
		ThrottleUserRate: valueOrDefault(k.String("THROTTLE_USER_RATE"), "1000-D"),
		ThrottleAnonRate: valueOrDefault(k.String("THROTTLE_ANON_RATE"), "60-M"),
		AutobanEnabled:   parseBool(k.String("AUTOBAN_ENABLED"), true),
		AutobanThreshold: parseInt(k.String("AUTOBAN_THRESHOLD"), 15),
		AutobanWindow:    parseDuration(k.String("AUTOBAN_WINDOW"), "1h"),
		AutobanDuration:  parseDuration(k.String("AUTOBAN_DURATION"), "24h"),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),

		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:     parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "shop"),
		MetricsBucketsMS:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:     parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:    valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		PprofEnabled:       parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		HealthDBTimeout:    time.Duration(parseInt(k.String("HEALTH_READY_DB_TIMEOUT_MS"), 500)) * time.Millisecond,
		HealthRedisTimeout: time.Duration(parseInt(k.String("HEALTH_READY_REDIS_TIMEOUT_MS"), 300)) * time.Millisecond,
	}

	if raw := strings.TrimSpace(k.String("FREE_SHIPPING_THRESHOLD")); raw != "" {
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("FREE_SHIPPING_THRESHOLD: %w", err)
		}
		cfg.FreeShippingThreshold = decimal.NewNullDecimal(threshold)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AutobanThreshold < 1 {
		return nil, errors.New("AUTOBAN_THRESHOLD must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// TelegramConfigured reports whether order notifications can be delivered.
func (c *Config) TelegramConfigured() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
