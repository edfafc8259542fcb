package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/storage"
)

// Auth modes
const (
	AuthModeJWT    = "jwt"
	AuthModeOIDC   = "oidc"
	AuthModeRemote = "remote"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
	Limits        LimitsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"GRC_HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"GRC_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"GRC_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"GRC_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"GRC_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"GRC_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `env:"GRC_HEALTH_PORT" envDefault:"9090"`

	// AllowedOrigins restricts CORS; empty or "*" reflects any origin
	AllowedOrigins []string `env:"GRC_ALLOWED_ORIGINS" envSeparator:","`
	Version        string   `env:"GRC_VERSION" envDefault:"dev"`
}

// AuthConfig selects how bearer credentials are verified and how the
// identity provider's admin API is reached.
type AuthConfig struct {
	Mode string `env:"GRC_AUTH_MODE" envDefault:"jwt"`

	JWTSecret   string `env:"AUTH_JWT_SECRET"`
	JWTAudience string `env:"AUTH_JWT_AUDIENCE" envDefault:"authenticated"`

	OIDCIssuer        string `env:"AUTH_OIDC_ISSUER"`
	OIDCClientID      string `env:"AUTH_OIDC_CLIENT_ID"`
	OIDCFetchUserInfo bool   `env:"AUTH_OIDC_FETCH_USERINFO"`

	// URL is the identity provider base URL, used by remote verification
	// and the admin client.
	URL               string `env:"AUTH_URL"`
	AnonKey           string `env:"AUTH_ANON_KEY"`
	ServiceRoleKey    string `env:"AUTH_SERVICE_ROLE_KEY"`
	InviteRedirectURL string `env:"AUTH_INVITE_REDIRECT_URL"`
}

// BillingConfig holds payment processor settings
type BillingConfig struct {
	SecretKey        string        `env:"STRIPE_SECRET_KEY"`
	WebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
	APIBaseURL       string        `env:"STRIPE_API_URL" envDefault:"https://api.stripe.com"`
	PricePro         string        `env:"STRIPE_PRICE_PRO"`
	PriceEnterprise  string        `env:"STRIPE_PRICE_ENTERPRISE"`
	PriceTableFile   string        `env:"STRIPE_PRICE_TABLE_FILE"`
	AppURL           string        `env:"GRC_APP_URL" envDefault:"http://localhost:3000"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `env:"GRC_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"GRC_LOG_FORMAT" envDefault:"json"`

	MetricsEnabled bool `env:"GRC_METRICS_ENABLED" envDefault:"true"`

	OTelEnabled        bool    `env:"GRC_OTEL_ENABLED"`
	OTelEndpoint       string  `env:"GRC_OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelServiceName    string  `env:"GRC_OTEL_SERVICE_NAME" envDefault:"grc-gateway"`
	OTelServiceVersion string  `env:"GRC_OTEL_SERVICE_VERSION" envDefault:"dev"`
	OTelInsecure       bool    `env:"GRC_OTEL_INSECURE"`
	OTelSampleRatio    float64 `env:"GRC_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// LimitsConfig bounds request sizes and rates
type LimitsConfig struct {
	MaxUploadBytes int64 `env:"GRC_MAX_UPLOAD_BYTES" envDefault:"20971520"`
	// RateLimitPerMinute is per actor; 0 disables rate limiting
	RateLimitPerMinute int `env:"GRC_RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the tracing configuration
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads existing env files (missing files are skipped), parses
// the environment and validates the result. Variables already set in the
// environment win over env file values.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// Validate checks the configuration for invalid values. The service role
// key and Stripe keys are optional at startup; operations needing them
// report a misconfiguration at request time.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.HealthPort == c.Server.Port {
		errs = append(errs, errors.New("health port must differ from server port"))
	}
	if c.Storage.PostgresURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Storage.PostgresMaxConns < 1 {
		errs = append(errs, errors.New("GRC_DB_MAX_CONNS must be at least 1"))
	}

	switch c.Auth.Mode {
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("AUTH_JWT_SECRET is required for jwt auth mode"))
		}
	case AuthModeOIDC:
		if c.Auth.OIDCIssuer == "" {
			errs = append(errs, errors.New("AUTH_OIDC_ISSUER is required for oidc auth mode"))
		}
	case AuthModeRemote:
		if c.Auth.URL == "" || c.Auth.AnonKey == "" {
			errs = append(errs, errors.New("AUTH_URL and AUTH_ANON_KEY are required for remote auth mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q (want jwt, oidc or remote)", c.Auth.Mode))
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Observability.LogFormat))
	}

	if c.Limits.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("GRC_MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Limits.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("GRC_RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if c.Billing.WebhookTolerance < 0 {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_TOLERANCE must not be negative"))
	}

	return errors.Join(errs...)
}

// ReporterConfig holds the settings of the usage reporter job
type ReporterConfig struct {
	Storage         storage.Config
	Observability   ObservabilityConfig
	ShutdownTimeout time.Duration `env:"GRC_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// LoadReporterConfig loads the subset of configuration the usage reporter
// needs; gateway-only settings such as auth keys are not required.
func LoadReporterConfig(envFiles ...string) (*ReporterConfig, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg, err := env.ParseAs[ReporterConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Storage.PostgresURL == "" {
		return nil, errors.New("configuration validation failed: DATABASE_URL is required")
	}
	return &cfg, nil
}
