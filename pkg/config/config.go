// Package config handles configuration loading from YAML files
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Pools     []PoolConfig    `yaml:"pools"`
	Replenish ReplenishConfig `yaml:"replenish"`
	Creator   CreatorConfig   `yaml:"creator"`
	Redis     RedisConfig     `yaml:"redis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Auth      AuthConfig      `yaml:"auth"`
	KeepWarm  KeepWarmConfig  `yaml:"keep_warm"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format is the log format (json or console)
	Format string `yaml:"format"`
	// Output is the output destination (stdout, file, or both)
	Output string `yaml:"output"`
	// FilePath is the log file path (required when output is file or both)
	FilePath string `yaml:"file_path"`
	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int `yaml:"max_size"`
	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int `yaml:"max_backups"`
	// MaxAge is the maximum number of days to retain old log files
	MaxAge int `yaml:"max_age"`
	// Compress determines if rotated files should be compressed
	Compress bool `yaml:"compress"`
}

// StoreConfig holds durable store and scheduler timing configuration
type StoreConfig struct {
	// Path is the canonical snapshot file location
	Path string `yaml:"path"`
	// SyncSeconds is the disk-sync tick period
	SyncSeconds int `yaml:"sync_seconds"`
	// AuditSeconds is the health-audit tick period
	AuditSeconds int `yaml:"audit_seconds"`
}

// PoolConfig describes one configured card pool
type PoolConfig struct {
	// Tier is the stable pool identifier (price point, e.g. "25")
	Tier string `yaml:"tier"`
	// Target is the desired steady-state card count
	Target int `yaml:"target"`
	// Min is the threshold below which the pool counts as degraded
	Min int `yaml:"min"`
	// Amount is the opaque creation parameter handed to the card creator
	Amount string `yaml:"amount"`
}

// ReplenishConfig tunes the replenisher retry and pacing behavior
type ReplenishConfig struct {
	// MaxRetries is the attempt budget per card creation
	MaxRetries int `yaml:"max_retries"`
	// BackoffBaseMs is the first retry delay; it doubles each attempt
	BackoffBaseMs int `yaml:"backoff_base_ms"`
	// PaceMs is the delay between successive creations in one run
	PaceMs int `yaml:"pace_ms"`
	// OnConsume triggers a replenishment check after every consume
	// when true; when false only the health-audit tick replenishes.
	OnConsume bool `yaml:"on_consume"`
}

// CreatorConfig configures the browser-driven card creator
type CreatorConfig struct {
	// StoreURL is the retailer gift card purchase page
	StoreURL string `yaml:"store_url"`
	// Recipient is the destination mailbox for purchased cards
	Recipient string `yaml:"recipient"`
	// RemoteURL points at a remote Chrome instance; empty launches one
	RemoteURL string `yaml:"remote_url"`
	Headless  bool   `yaml:"headless"`
	NoSandbox bool   `yaml:"no_sandbox"`
	// TimeoutSeconds bounds a single creation attempt
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Mailbox        MailboxConfig `yaml:"mailbox"`
}

// MailboxConfig configures verification-code retrieval
type MailboxConfig struct {
	BaseURL        string `yaml:"base_url"`
	Address        string `yaml:"address"`
	Token          string `yaml:"token"`
	PollSeconds    int    `yaml:"poll_seconds"`
	MaxWaitSeconds int    `yaml:"max_wait_seconds"`
}

// RedisConfig holds the optional event ledger configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// EventList is the capped list that keeps recent pool events
	EventList string `yaml:"event_list"`
	// EventChannel carries live events for dashboard subscribers
	EventChannel string `yaml:"event_channel"`
	MaxEvents    int    `yaml:"max_events"`
}

// ArchiveConfig holds the optional MySQL card archive configuration
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	SecretKey                string `yaml:"secret_key"`
	Username                 string `yaml:"username"`
	PasswordHash             string `yaml:"password_hash"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
}

// KeepWarmConfig configures the self-ping that keeps an idle host alive
type KeepWarmConfig struct {
	Enabled bool `yaml:"enabled"`
	// URL defaults to the service's own health endpoint
	URL string `yaml:"url"`
	// IntervalMinutes is the ping period
	IntervalMinutes int `yaml:"interval_minutes"`
}

// Load reads, merges with environment overrides, and validates configuration
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "logs/app.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		},
		Store: StoreConfig{Path: "data/cards.json", SyncSeconds: 5, AuditSeconds: 60},
		Replenish: ReplenishConfig{
			MaxRetries:    3,
			BackoffBaseMs: 2000,
			PaceMs:        2000,
			OnConsume:     true,
		},
		Creator: CreatorConfig{
			Headless:       true,
			TimeoutSeconds: 45,
			Mailbox:        MailboxConfig{PollSeconds: 3, MaxWaitSeconds: 90},
		},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, EventList: "giftvault:events", EventChannel: "giftvault:events:live", MaxEvents: 1000},
		Archive:  ArchiveConfig{Host: "localhost", Port: 3306, User: "root", Database: "giftvault", PoolSize: 10},
		Auth:     AuthConfig{Username: "admin", AccessTokenExpireMinutes: 60},
		KeepWarm: KeepWarmConfig{IntervalMinutes: 5},
	}
}

// applyEnvOverrides lets deployment environments override secrets and ports
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getIntEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Auth.SecretKey = getEnv("AUTH_SECRET_KEY", cfg.Auth.SecretKey)
	cfg.Auth.PasswordHash = getEnv("AUTH_PASSWORD_HASH", cfg.Auth.PasswordHash)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getIntEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Archive.Host = getEnv("DB_HOST", cfg.Archive.Host)
	cfg.Archive.Port = getIntEnv("DB_PORT", cfg.Archive.Port)
	cfg.Archive.User = getEnv("DB_USER", cfg.Archive.User)
	cfg.Archive.Password = getEnv("DB_PASSWORD", cfg.Archive.Password)
	cfg.Archive.Database = getEnv("DB_NAME", cfg.Archive.Database)
	cfg.Creator.Mailbox.Token = getEnv("MAILBOX_TOKEN", cfg.Creator.Mailbox.Token)
}

func applyDefaults(cfg *Config) {
	if cfg.KeepWarm.URL == "" {
		cfg.KeepWarm.URL = fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)
	}
}

// Validate rejects configurations the service cannot serve traffic with
func (c *Config) Validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("no pools configured")
	}
	seen := make(map[string]bool, len(c.Pools))
	for _, p := range c.Pools {
		if p.Tier == "" {
			return fmt.Errorf("pool with empty tier")
		}
		if seen[p.Tier] {
			return fmt.Errorf("duplicate pool tier %q", p.Tier)
		}
		seen[p.Tier] = true
		if p.Target < 1 {
			return fmt.Errorf("pool %q: target must be >= 1, got %d", p.Tier, p.Target)
		}
		if p.Min < 0 || p.Min > p.Target {
			return fmt.Errorf("pool %q: min must be within [0, target], got %d", p.Tier, p.Min)
		}
		if p.Amount == "" {
			return fmt.Errorf("pool %q: amount is required", p.Tier)
		}
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required")
	}
	if c.Replenish.MaxRetries < 1 {
		return fmt.Errorf("replenish.max_retries must be >= 1")
	}
	return nil
}

// Pool returns the configuration for one tier
func (c *Config) Pool(tier string) (PoolConfig, bool) {
	for _, p := range c.Pools {
		if p.Tier == tier {
			return p, true
		}
	}
	return PoolConfig{}, false
}

// BackoffBase returns the first retry delay as a duration
func (r ReplenishConfig) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseMs) * time.Millisecond
}

// Pace returns the inter-creation delay as a duration
func (r ReplenishConfig) Pace() time.Duration {
	return time.Duration(r.PaceMs) * time.Millisecond
}

// Timeout returns the per-attempt creation timeout
func (c CreatorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// getEnv returns environment variable value or default
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getIntEnv returns environment variable as int or default
func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
