package config

import (
	"errors"
	"fmt"
	"os"
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
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Business parameters applied to every price calculation.
	TaxRate         decimal.Decimal
	TaxInclusive    bool
	PointsPerAmount decimal.Decimal
	PointValue      decimal.Decimal
	MaxDiscountPct  decimal.Decimal
	MinMarginPct    decimal.Decimal

	CartTTL        time.Duration
	IdempotencyTTL time.Duration

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int

	RunMigrations bool
	MigrationsDir string

	TracingEnabled  bool
	TracingEndpoint string
	TracingInsecure bool
	TracingSample   float64

	MetricsBucketsCSV string
	PprofEnabled      bool
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
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		TaxRate:         parseDecimal(k.String("TAX_RATE"), "11"),
		TaxInclusive:    parseBool(k.String("TAX_INCLUSIVE")),
		PointsPerAmount: parseDecimal(k.String("POINTS_PER_AMOUNT"), "10000"),
		PointValue:      parseDecimal(k.String("POINT_VALUE"), "100"),
		MaxDiscountPct:  parseDecimal(k.String("MAX_DISCOUNT_PCT"), "30"),
		MinMarginPct:    parseDecimal(k.String("MIN_MARGIN_PCT"), "5"),

		CartTTL:        parseDuration(k.String("CART_TTL"), "24h"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		RateLimitEnabled: parseBoolDefault(k.String("RATE_LIMIT_ENABLED"), true),
		RateLimitRPS:     int(k.Int64("RATE_LIMIT_RPS")),
		RateLimitBurst:   int(k.Int64("RATE_LIMIT_BURST")),

		RunMigrations: parseBool(k.String("RUN_MIGRATIONS")),
		MigrationsDir: valueOrDefault(k.String("MIGRATIONS_DIR"), "db/migrations"),

		TracingEnabled:  parseBool(k.String("OTEL_ENABLED")),
		TracingEndpoint: valueOrDefault(k.String("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4318"),
		TracingInsecure: parseBoolDefault(k.String("OTEL_EXPORTER_OTLP_INSECURE"), true),
		TracingSample:   k.Float64("OTEL_TRACES_SAMPLE_RATIO"),

		MetricsBucketsCSV: k.String("METRICS_LATENCY_BUCKETS_MS"),
		PprofEnabled:      parseBool(k.String("PPROF_ENABLED")),
	}

	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	if cfg.TracingSample <= 0 || cfg.TracingSample > 1 {
		cfg.TracingSample = 1
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.TaxRate.IsNegative() {
		return nil, errors.New("TAX_RATE must not be negative")
	}
	if !cfg.PointsPerAmount.IsPositive() {
		return nil, errors.New("POINTS_PER_AMOUNT must be positive")
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
	if strings.TrimSpace(value) != "" {
		return value
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

func parseDecimal(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
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
