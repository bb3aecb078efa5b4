package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds the whole application configuration, populated from
// environment variables.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	SSLMode           string
	MaxConns          int
	MinConns          int
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	ConnectTimeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// PaymentConfig drives the gateway layer and the payment service.
type PaymentConfig struct {
	// BaseURL is the public URL providers send customers and webhooks back to.
	BaseURL string
	// ResultURL is the storefront page a browser return is redirected to.
	ResultURL string

	HTTPTimeout    time.Duration
	LockTTL        time.Duration
	LockWait       time.Duration
	MethodCacheTTL time.Duration

	ReconcileInterval  time.Duration
	ReconcileMinAge    time.Duration
	ReconcileMaxAge    time.Duration
	ReconcileBatchSize int
	ReconcileProviders []string

	// Endpoints overrides provider API base URLs, e.g.
	// PAYMENT_ENDPOINTS="stripe=http://stripe-mock:12111,paypal=http://localhost:9000".
	Endpoints map[string]string
}

type RateLimitConfig struct {
	CallbackRPS   float64
	CallbackBurst int
}

type WorkerConfig struct {
	Concurrency int
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Storefront Payments"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Database:          getEnv("DB_NAME", "storefront"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          getEnvInt("DB_MAX_CONNS", 25),
			MinConns:          getEnvInt("DB_MIN_CONNS", 5),
			MaxConnLifetime:   getEnvDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvDuration("DB_MAX_CONN_IDLE_TIME", time.Minute),
			HealthCheckPeriod: getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			MaxRetries:        getEnvInt("DB_MAX_RETRIES", 5),
			RetryDelay:        getEnvDuration("DB_RETRY_DELAY", time.Second),
			ConnectTimeout:    getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", defaultJWTSecret),
			Issuer: getEnv("JWT_ISSUER", "storefront"),
		},
		Payment: PaymentConfig{
			BaseURL:            getEnv("PAYMENT_BASE_URL", "http://localhost:8080"),
			ResultURL:          getEnv("PAYMENT_RESULT_URL", ""),
			HTTPTimeout:        getEnvDuration("PAYMENT_HTTP_TIMEOUT", 30*time.Second),
			LockTTL:            getEnvDuration("PAYMENT_LOCK_TTL", 30*time.Second),
			LockWait:           getEnvDuration("PAYMENT_LOCK_WAIT", 2*time.Second),
			MethodCacheTTL:     getEnvDuration("PAYMENT_METHOD_CACHE_TTL", 5*time.Minute),
			ReconcileInterval:  getEnvDuration("PAYMENT_RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileMinAge:    getEnvDuration("PAYMENT_RECONCILE_MIN_AGE", 15*time.Minute),
			ReconcileMaxAge:    getEnvDuration("PAYMENT_RECONCILE_MAX_AGE", 48*time.Hour),
			ReconcileBatchSize: getEnvInt("PAYMENT_RECONCILE_BATCH", 50),
			ReconcileProviders: getEnvList("PAYMENT_RECONCILE_PROVIDERS"),
			Endpoints:          getEnvMap("PAYMENT_ENDPOINTS"),
		},
		RateLimit: RateLimitConfig{
			CallbackRPS:   getEnvFloat("RATE_LIMIT_CALLBACK_RPS", 5),
			CallbackBurst: getEnvInt("RATE_LIMIT_CALLBACK_BURST", 20),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate checks ranges everywhere and secrets in production.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Payment,
		validation.Field(&c.Payment.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Payment.ResultURL, is.URL),
		validation.Field(&c.Payment.HTTPTimeout, validation.Min(time.Second)),
		validation.Field(&c.Payment.LockTTL, validation.Min(time.Second)),
		validation.Field(&c.Payment.ReconcileInterval, validation.Min(time.Minute)),
		validation.Field(&c.Payment.ReconcileBatchSize, validation.Min(1), validation.Max(1000)),
	); err != nil {
		return fmt.Errorf("payment: %w", err)
	}

	if err := validation.ValidateStruct(&c.RateLimit,
		validation.Field(&c.RateLimit.CallbackRPS, validation.Min(0.1)),
		validation.Field(&c.RateLimit.CallbackBurst, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	if c.IsProduction() {
		if c.JWT.Secret == defaultJWTSecret || len(c.JWT.Secret) < 32 {
			return errors.New("JWT_SECRET must be set to at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return errors.New("DB_PASSWORD must be set in production")
		}
		if !strings.HasPrefix(c.Payment.BaseURL, "https://") {
			return errors.New("PAYMENT_BASE_URL must use https in production")
		}
		if len(c.Payment.Endpoints) > 0 {
			return errors.New("PAYMENT_ENDPOINTS overrides are not allowed in production")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvMap parses "k1=v1,k2=v2".
func getEnvMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvList(key) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}
