// Package config provides runtime defaults, validation, and loading from a
// YAML file plus environment overrides for the tourneychat service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// ChatConfig holds the room and relay bounds.
type ChatConfig struct {
	BufferCapacity int           `yaml:"buffer_capacity"`
	MaxTextLength  int           `yaml:"max_text_length"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	TombstoneTTL   time.Duration `yaml:"tombstone_ttl"`
}

// HistoryConfig holds the durable history query bounds.
type HistoryConfig struct {
	Limit int           `yaml:"limit"`
	Grace time.Duration `yaml:"grace"`
}

// ArchiveConfig sizes the asynchronous message archive writer.
type ArchiveConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `yaml:"port"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	MaxMessageSize  int64           `yaml:"max_message_size"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	JWTSecret       string          `yaml:"jwt_secret"`
	JWTIssuer       string          `yaml:"jwt_issuer"`
	DatabaseURL     string          `yaml:"database_url"`
	SeedFile        string          `yaml:"seed_file"`
	RedisURL        string          `yaml:"redis_url"`
	RedisChannel    string          `yaml:"redis_channel"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Chat            ChatConfig      `yaml:"chat"`
	History         HistoryConfig   `yaml:"history"`
	Archive         ArchiveConfig   `yaml:"archive"`
}

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		JWTIssuer:       "tourneychat",
		RedisChannel:    "tourneychat:rooms",
		ShutdownTimeout: 10 * time.Second,
		Chat: ChatConfig{
			BufferCapacity: 200,
			MaxTextLength:  500,
			SweepInterval:  60 * time.Second,
			TombstoneTTL:   24 * time.Hour,
		},
		History: HistoryConfig{
			Limit: 100,
			Grace: 7 * 24 * time.Hour,
		},
		Archive: ArchiveConfig{
			QueueSize: 1024,
			Workers:   2,
		},
	}
}

// Sanitize replaces zero or negative values with their defaults.
func (c *Config) Sanitize() {
	def := Default()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.JWTIssuer == "" {
		c.JWTIssuer = def.JWTIssuer
	}
	if c.RedisChannel == "" {
		c.RedisChannel = def.RedisChannel
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Chat.BufferCapacity <= 0 {
		c.Chat.BufferCapacity = def.Chat.BufferCapacity
	}
	if c.Chat.MaxTextLength <= 0 {
		c.Chat.MaxTextLength = def.Chat.MaxTextLength
	}
	if c.Chat.SweepInterval <= 0 {
		c.Chat.SweepInterval = def.Chat.SweepInterval
	}
	if c.Chat.TombstoneTTL <= 0 {
		c.Chat.TombstoneTTL = def.Chat.TombstoneTTL
	}
	if c.History.Limit <= 0 {
		c.History.Limit = def.History.Limit
	}
	if c.History.Grace <= 0 {
		c.History.Grace = def.History.Grace
	}
	if c.Archive.QueueSize <= 0 {
		c.Archive.QueueSize = def.Archive.QueueSize
	}
	if c.Archive.Workers <= 0 {
		c.Archive.Workers = def.Archive.Workers
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	ApplyEnv(&cfg)
	cfg.Sanitize()
	return &cfg, nil
}

// LoadFile decodes the YAML file at path over cfg.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any environment variables that are set.
// Unparseable values keep the current setting.
func ApplyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64Value(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SEED_FILE"); v != "" {
		cfg.SeedFile = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_CHANNEL"); v != "" {
		cfg.RedisChannel = strings.TrimSpace(v)
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		cfg.ShutdownTimeout = parseDuration(v, cfg.ShutdownTimeout)
	}
	if v := os.Getenv("BUFFER_CAPACITY"); v != "" {
		cfg.Chat.BufferCapacity = parseIntValue(v, cfg.Chat.BufferCapacity)
	}
	if v := os.Getenv("MAX_TEXT_LENGTH"); v != "" {
		cfg.Chat.MaxTextLength = parseIntValue(v, cfg.Chat.MaxTextLength)
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		cfg.Chat.SweepInterval = parseDuration(v, cfg.Chat.SweepInterval)
	}
	if v := os.Getenv("TOMBSTONE_TTL"); v != "" {
		cfg.Chat.TombstoneTTL = parseDuration(v, cfg.Chat.TombstoneTTL)
	}
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		cfg.History.Limit = parseIntValue(v, cfg.History.Limit)
	}
	if v := os.Getenv("HISTORY_GRACE"); v != "" {
		cfg.History.Grace = parseDuration(v, cfg.History.Grace)
	}
	if v := os.Getenv("ARCHIVE_QUEUE_SIZE"); v != "" {
		cfg.Archive.QueueSize = parseIntValue(v, cfg.Archive.QueueSize)
	}
	if v := os.Getenv("ARCHIVE_WORKERS"); v != "" {
		cfg.Archive.Workers = parseIntValue(v, cfg.Archive.Workers)
	}
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts a bare number of seconds or a Go duration string
// such as "90s" or "168h".
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
