package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GUEST_TOKEN_TTL", "")
	cfg := Load()

	if cfg.Feedback.GuestTokenTTL != 24*time.Hour {
		t.Errorf("GuestTokenTTL = %v, want 24h", cfg.Feedback.GuestTokenTTL)
	}
	if cfg.Feedback.LowRatingThreshold != 5 {
		t.Errorf("LowRatingThreshold = %d, want 5", cfg.Feedback.LowRatingThreshold)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GUEST_TOKEN_TTL", "2h")
	t.Setenv("PUBLIC_RATE_BURST", "3")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()
	if cfg.Feedback.GuestTokenTTL != 2*time.Hour {
		t.Errorf("GuestTokenTTL = %v", cfg.Feedback.GuestTokenTTL)
	}
	if cfg.RateLimit.PublicBurst != 3 {
		t.Errorf("PublicBurst = %d", cfg.RateLimit.PublicBurst)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver = %q", cfg.Database.Driver)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "many")
	t.Setenv("EMAIL_DEV_MODE", "sometimes")
	t.Setenv("ACCESS_TOKEN_TTL", "forever")

	cfg := Load()
	if cfg.Database.MaxConns != 10 {
		t.Errorf("MaxConns = %d, want fallback 10", cfg.Database.MaxConns)
	}
	if !cfg.Email.DevMode {
		t.Errorf("DevMode should fall back to true")
	}
	if cfg.Auth.AccessTokenTTL != 12*time.Hour {
		t.Errorf("AccessTokenTTL = %v", cfg.Auth.AccessTokenTTL)
	}
}
