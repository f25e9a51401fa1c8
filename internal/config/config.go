// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// OpsGRPCAddr is the address of the gRPC ops server (health, reflection). Empty disables it.
	OpsGRPCAddr string `mapstructure:"OPS_GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrateOnStart runs the embedded migrations before the server starts listening.
	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`

	// JWTSecret is the HS256 signing secret shared by access and refresh tokens. Required.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "2160h" for 90 days).
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (10–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// StoreTimeoutRaw bounds each database round trip made while serving a request (e.g. "5s").
	StoreTimeoutRaw string `mapstructure:"STORE_TIMEOUT"`

	// CORSAllowedOrigins is a comma-separated list of origins; "*" allows all.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty means no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Aggregator (Plaid) credentials. When ClientID or Secret is empty the aggregator routes fail with 500.
	PlaidClientID     string `mapstructure:"PLAID_CLIENT_ID"`
	PlaidSecret       string `mapstructure:"PLAID_SECRET"`
	PlaidBaseURL      string `mapstructure:"PLAID_BASE_URL"`
	PlaidClientName   string `mapstructure:"PLAID_CLIENT_NAME"`
	PlaidRedirectURI  string `mapstructure:"PLAID_REDIRECT_URI"`
	PlaidCountryCodes string `mapstructure:"PLAID_COUNTRY_CODES"`
	PlaidProducts     string `mapstructure:"PLAID_PRODUCTS"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("OPS_GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "2160h") // 90d
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "canny-api")
	v.SetDefault("PLAID_CLIENT_ID", "")
	v.SetDefault("PLAID_SECRET", "")
	v.SetDefault("PLAID_BASE_URL", "https://sandbox.plaid.com")
	v.SetDefault("PLAID_CLIENT_NAME", "canny")
	v.SetDefault("PLAID_REDIRECT_URI", "")
	v.SetDefault("PLAID_COUNTRY_CODES", "US")
	v.SetDefault("PLAID_PRODUCTS", "transactions")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 10 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 10 and 31")
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, errors.New("config: LOG_FORMAT must be json or text")
	}

	return &cfg, nil
}

// RequireSecret returns an error when JWT_SECRET is empty. Only binaries that issue or verify tokens call it.
func (c *Config) RequireSecret() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 90 days if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 90 * 24 * time.Hour
	}
	return d
}

// StoreTimeout parses StoreTimeoutRaw. Returns 5s if unset or invalid.
func (c *Config) StoreTimeout() time.Duration {
	d, err := time.ParseDuration(c.StoreTimeoutRaw)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// CORSOrigins returns the allowed origins from the comma-separated config.
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// PlaidCountryCodeList returns aggregator country codes, upper-cased.
func (c *Config) PlaidCountryCodeList() []string {
	list := splitList(c.PlaidCountryCodes)
	for i := range list {
		list[i] = strings.ToUpper(list[i])
	}
	return list
}

// PlaidProductList returns aggregator products, lower-cased.
func (c *Config) PlaidProductList() []string {
	list := splitList(c.PlaidProducts)
	for i := range list {
		list[i] = strings.ToLower(list[i])
	}
	return list
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
