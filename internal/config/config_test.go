package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesChatBounds(t *testing.T) {
	cfg := Default()

	if cfg.Chat.BufferCapacity != 200 {
		t.Errorf("Expected buffer capacity 200, got %d", cfg.Chat.BufferCapacity)
	}
	if cfg.Chat.MaxTextLength != 500 {
		t.Errorf("Expected max text length 500, got %d", cfg.Chat.MaxTextLength)
	}
	if cfg.Chat.SweepInterval != 60*time.Second {
		t.Errorf("Expected sweep interval 60s, got %s", cfg.Chat.SweepInterval)
	}
	if cfg.History.Limit != 100 {
		t.Errorf("Expected history limit 100, got %d", cfg.History.Limit)
	}
	if cfg.History.Grace != 7*24*time.Hour {
		t.Errorf("Expected history grace 168h, got %s", cfg.History.Grace)
	}
}

func TestSanitizeRestoresDefaults(t *testing.T) {
	cfg := Config{
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		Chat:           ChatConfig{BufferCapacity: -5},
	}
	cfg.Sanitize()

	def := Default()
	if cfg.Port != def.Port {
		t.Errorf("Expected port %q, got %q", def.Port, cfg.Port)
	}
	if cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("Expected max message size %d, got %d", def.MaxMessageSize, cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != def.RateLimit.Burst {
		t.Errorf("Expected burst %d, got %d", def.RateLimit.Burst, cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != def.RateLimit.RefillInterval {
		t.Errorf("Expected refill %s, got %s", def.RateLimit.RefillInterval, cfg.RateLimit.RefillInterval)
	}
	if cfg.Chat.BufferCapacity != def.Chat.BufferCapacity {
		t.Errorf("Expected buffer capacity %d, got %d", def.Chat.BufferCapacity, cfg.Chat.BufferCapacity)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example ,")
	t.Setenv("RATE_LIMIT_BURST", "12")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("HISTORY_GRACE", "48h")
	t.Setenv("BUFFER_CAPACITY", "not-a-number")
	t.Setenv("SEED_FILE", " dev/seed.yaml ")

	cfg := Default()
	ApplyEnv(&cfg)

	if cfg.Port != ":9999" {
		t.Errorf("Expected port :9999, got %q", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("Unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimit.Burst != 12 {
		t.Errorf("Expected burst 12, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != 3*time.Second {
		t.Errorf("Expected refill 3s, got %s", cfg.RateLimit.RefillInterval)
	}
	if cfg.Chat.SweepInterval != 15*time.Second {
		t.Errorf("Expected sweep 15s, got %s", cfg.Chat.SweepInterval)
	}
	if cfg.History.Grace != 48*time.Hour {
		t.Errorf("Expected grace 48h, got %s", cfg.History.Grace)
	}
	if cfg.Chat.BufferCapacity != 200 {
		t.Errorf("Expected invalid env to keep 200, got %d", cfg.Chat.BufferCapacity)
	}
	if cfg.SeedFile != "dev/seed.yaml" {
		t.Errorf("Expected seed file dev/seed.yaml, got %q", cfg.SeedFile)
	}
}

func TestLoadReadsYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tourneychat.yaml")
	body := []byte(`port: ":7000"
jwt_secret: from-file
chat:
  buffer_capacity: 50
  sweep_interval: 30s
history:
  limit: 20
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != ":7000" {
		t.Errorf("Expected port from file, got %q", cfg.Port)
	}
	if cfg.JWTSecret != "from-env" {
		t.Errorf("Expected env to override file secret, got %q", cfg.JWTSecret)
	}
	if cfg.Chat.BufferCapacity != 50 {
		t.Errorf("Expected buffer capacity 50, got %d", cfg.Chat.BufferCapacity)
	}
	if cfg.Chat.SweepInterval != 30*time.Second {
		t.Errorf("Expected sweep 30s, got %s", cfg.Chat.SweepInterval)
	}
	if cfg.Chat.MaxTextLength != 500 {
		t.Errorf("Expected unset max text length to default to 500, got %d", cfg.Chat.MaxTextLength)
	}
	if cfg.History.Limit != 20 {
		t.Errorf("Expected history limit 20, got %d", cfg.History.Limit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error without JWT secret")
	}
	cfg.JWTSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}
