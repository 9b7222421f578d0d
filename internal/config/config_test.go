package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "costing-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "costing-auth")
	}
	if cfg.JWTAudience != "costing-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "costing-api")
	}
	if cfg.JWTAccessTTL != "15m" {
		t.Errorf("JWTAccessTTL = %q, want %q", cfg.JWTAccessTTL, "15m")
	}
	if cfg.JWTRefreshTTL != "168h" {
		t.Errorf("JWTRefreshTTL = %q, want %q", cfg.JWTRefreshTTL, "168h")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.Production() {
		t.Error("Production() should be false by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ACCESS_TTL", "5m")
	os.Setenv("JWT_REFRESH_TTL", "24h")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.AccessTTL() != 5*time.Minute {
		t.Errorf("AccessTTL() = %v, want 5m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 24h", cfg.RefreshTTL())
	}
	if !cfg.Production() {
		t.Error("Production() should be true when APP_ENV=production")
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("BCRYPT_COST", "99")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject BCRYPT_COST=99")
	}
}

func TestLoad_SameSigningKeysRejected(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("JWT_ACCESS_PRIVATE_KEY", "same.pem")
	os.Setenv("JWT_REFRESH_PRIVATE_KEY", "same.pem")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject identical access and refresh signing keys")
	}
}

func TestTTL_InvalidFallsBackToDefault(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("JWT_ACCESS_TTL", "not-a-duration")
	os.Setenv("JWT_REFRESH_TTL", "-1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL() = %v, want default 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL() = %v, want default 168h", cfg.RefreshTTL())
	}
}

func TestAllowedOrigins(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("AllowedOrigins() = %v, want 2 entries", origins)
	}
	if origins[0] != "http://a.example" || origins[1] != "http://b.example" {
		t.Errorf("AllowedOrigins() = %v", origins)
	}
}
