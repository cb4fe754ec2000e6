package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation to reject an empty AUTH_SECRET")
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "NEGOTIATION_TTL_HOURS", "MAX_OFFER_ROUNDS", "EXPIRY_SWEEP_SPEC", "TRUST_CACHE_TTL_SECONDS", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
	if cfg.NegotiationTTL() != 24*time.Hour {
		t.Fatalf("expected 24h negotiation ttl, got %s", cfg.NegotiationTTL())
	}
	if cfg.MaxOfferRounds != 0 {
		t.Fatalf("expected unlimited offer rounds, got %d", cfg.MaxOfferRounds)
	}
	if cfg.ExpirySweepSpec != "@hourly" {
		t.Fatalf("expected hourly sweep, got %q", cfg.ExpirySweepSpec)
	}
	if cfg.TrustCacheTTL() != 5*time.Minute {
		t.Fatalf("expected 5m trust cache ttl, got %s", cfg.TrustCacheTTL())
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info log level, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("NEGOTIATION_TTL_HOURS", "-3")
	t.Setenv("MAX_OFFER_ROUNDS", "abc")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")

	cfg := Load()
	if cfg.NegotiationTTLHours != 24 || cfg.MaxOfferRounds != 0 || cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallbacks for invalid values, got %+v", cfg)
	}

	t.Setenv("MAX_OFFER_ROUNDS", "6")
	if got := Load().MaxOfferRounds; got != 6 {
		t.Fatalf("expected 6 offer rounds, got %d", got)
	}
}

func TestValidateAcceptsLongSecret(t *testing.T) {
	cfg := Config{AuthSecret: strings.Repeat("s", MinAuthSecretLength), ExpirySweepSpec: "@hourly"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadDotEnvKeepsRealEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PORT=9090\nAGRIMARKET_DOTENV_ONLY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("AGRIMARKET_DOTENV_ONLY", "")
	os.Unsetenv("AGRIMARKET_DOTENV_ONLY")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("PORT"); got != "7070" {
		t.Fatalf("expected real env to win, got %q", got)
	}
	if got := os.Getenv("AGRIMARKET_DOTENV_ONLY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
