package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mstgnz/gowompi/infra/validate"
)

// Token cache backends
const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Port        string `envconfig:"APP_PORT" default:"9999"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// APIKey guards the /v1 proxy routes. Empty disables them.
	APIKey             string   `envconfig:"API_KEY"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"100" validate:"gt=0"`
	WebhookIPWhitelist []string `envconfig:"WEBHOOK_IP_WHITELIST"`

	WompiAuthURL       string `envconfig:"WOMPI_AUTH_URL" default:"https://id.wompi.sv" validate:"required,url"`
	WompiAPIURL        string `envconfig:"WOMPI_API_URL" default:"https://api.wompi.sv/v1" validate:"required,url"`
	WompiClientID      string `envconfig:"WOMPI_CLIENT_ID" validate:"required"`
	WompiClientSecret  string `envconfig:"WOMPI_CLIENT_SECRET" validate:"required"`
	WompiWebhookSecret string `envconfig:"WOMPI_WEBHOOK_SECRET"`

	HTTPTimeout          time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	EnableCircuitBreaker bool          `envconfig:"ENABLE_CIRCUIT_BREAKER" default:"false"`

	TokenCache  string `envconfig:"TOKEN_CACHE" default:"memory" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/gowompi.db" validate:"required_if=TokenCache sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=TokenCache postgres"`

	OpenSearchURL  string `envconfig:"OPENSEARCH_URL" default:"http://localhost:9200"`
	OpenSearchUser string `envconfig:"OPENSEARCH_USER"`
	OpenSearchPass string `envconfig:"OPENSEARCH_PASSWORD"`
	EnableLogging  bool   `envconfig:"ENABLE_OPENSEARCH_LOGGING" default:"false"`
	LoggingLevel   string `envconfig:"LOGGING_LEVEL" default:"info"`
}

// Load reads .env (if present) and the environment into an AppConfig and
// validates it
func Load() (*AppConfig, error) {
	// .env is optional and never overrides variables already set
	_ = godotenv.Load()

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
