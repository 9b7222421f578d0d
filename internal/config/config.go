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
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTAccessPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file, used to sign access tokens.
	JWTAccessPrivateKey string `mapstructure:"JWT_ACCESS_PRIVATE_KEY"`
	// JWTAccessPublicKey is the PEM-encoded public key or path to file for access token verification.
	JWTAccessPublicKey string `mapstructure:"JWT_ACCESS_PUBLIC_KEY"`
	// JWTRefreshPrivateKey signs refresh tokens. Must be a different key than the access pair
	// so a leaked access key cannot forge refresh tokens.
	JWTRefreshPrivateKey string `mapstructure:"JWT_REFRESH_PRIVATE_KEY"`
	// JWTRefreshPublicKey verifies refresh tokens.
	JWTRefreshPublicKey string `mapstructure:"JWT_REFRESH_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "costing-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "costing-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime; also the session expiry (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// CookieDomain is the Domain attribute set on auth cookies; empty for host-only.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	// CORSAllowedOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// RateLimitGlobal caps requests per minute per client IP across all routes; 0 disables.
	RateLimitGlobal int64 `mapstructure:"RATE_LIMIT_GLOBAL"`
	// RateLimitAuth caps login/refresh attempts per minute per client IP; 0 disables.
	RateLimitAuth int64 `mapstructure:"RATE_LIMIT_AUTH"`
	// Env is the application environment (e.g. "development", "production").
	// Production tightens auth cookies to Secure + SameSite=Strict.
	Env string `mapstructure:"APP_ENV"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317); empty disables telemetry.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// SeedAdminEmail and SeedAdminPassword are used only by cmd/seed to bootstrap the first admin user.
	SeedAdminEmail    string `mapstructure:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "costing-auth")
	v.SetDefault("JWT_AUDIENCE", "costing-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_GLOBAL", 300)
	v.SetDefault("RATE_LIMIT_AUTH", 10)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("SEED_ADMIN_EMAIL", "")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.JWTAccessPrivateKey != "" && cfg.JWTAccessPrivateKey == cfg.JWTRefreshPrivateKey {
		return nil, errors.New("config: JWT_ACCESS_PRIVATE_KEY and JWT_REFRESH_PRIVATE_KEY must differ")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// Production reports whether the app runs with production hardening (Secure cookies, SameSite=Strict).
func (c *Config) Production() bool {
	return c.Env == "production"
}

// AllowedOrigins returns CORS origins from the comma-separated config value.
func (c *Config) AllowedOrigins() []string {
	if c == nil || c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
