// Package config defines the top-level configuration for the wager resolver
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RESOLVER_* environment variables.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	SQLite    SQLiteConfig    `toml:"sqlite"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Queue     QueueConfig     `toml:"queue"`
	Breaker   BreakerConfig   `toml:"breaker"`
	GameData  GameDataConfig  `toml:"gamedata"`
	Detector  DetectorConfig  `toml:"detector"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Sources   SourcesConfig   `toml:"sources"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StoreConfig selects the relational backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `toml:"driver"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the local database file used when store.driver is sqlite.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveEvidence uploads the deciding snapshot of every resolution.
	ArchiveEvidence bool `toml:"archive_evidence"`
}

// QueueConfig holds resolution job queue parameters.
type QueueConfig struct {
	Workers            int      `toml:"workers"`
	MaxAttempts        int      `toml:"max_attempts"`
	BaseBackoff        duration `toml:"base_backoff"`
	MaxBackoff         duration `toml:"max_backoff"`
	PollInterval       duration `toml:"poll_interval"`
	LeaseTTL           duration `toml:"lease_ttl"`
	CompletedRetention duration `toml:"completed_retention"`
	FailedRetention    duration `toml:"failed_retention"`
}

// BreakerConfig holds circuit breaker parameters shared by upstream calls.
type BreakerConfig struct {
	Threshold int      `toml:"threshold"`
	Cooldown  duration `toml:"cooldown"`
}

// GameDataConfig points at the game-data service used when no cached snapshot
// is available.
type GameDataConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	RatePerSec float64  `toml:"rate_per_sec"`
	Burst      int      `toml:"burst"`
	Timeout    duration `toml:"timeout"`
}

// DetectorConfig holds snapshot change detection parameters.
type DetectorConfig struct {
	SignatureTTL duration `toml:"signature_ttl"`
	SnapshotTTL  duration `toml:"snapshot_ttl"`
}

// LifecycleConfig holds wager lifecycle parameters.
type LifecycleConfig struct {
	SweepInterval duration `toml:"sweep_interval"`
	SweepBatch    int      `toml:"sweep_batch"`
}

// SourcesConfig selects where refined snapshots arrive from. Any combination
// may be enabled.
type SourcesConfig struct {
	WebSocketURL string   `toml:"websocket_url"`
	S3Prefix     string   `toml:"s3_prefix"`
	S3Enabled    bool     `toml:"s3_enabled"`
	S3Interval   duration `toml:"s3_interval"`
	BusChannel   string   `toml:"bus_channel"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RatePerSec  float64  `toml:"rate_per_sec"`
	RateBurst   int      `toml:"rate_burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Driver: "postgres"},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{Path: "resolver.db"},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "resolver:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "refined-snapshots",
			ForcePathStyle: true,
		},
		Queue: QueueConfig{
			Workers:            4,
			MaxAttempts:        5,
			BaseBackoff:        duration{time.Second},
			MaxBackoff:         duration{time.Minute},
			PollInterval:       duration{500 * time.Millisecond},
			LeaseTTL:           duration{30 * time.Second},
			CompletedRetention: duration{24 * time.Hour},
			FailedRetention:    duration{7 * 24 * time.Hour},
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Cooldown:  duration{30 * time.Second},
		},
		GameData: GameDataConfig{
			RatePerSec: 5,
			Burst:      5,
			Timeout:    duration{10 * time.Second},
		},
		Detector: DetectorConfig{
			SignatureTTL: duration{6 * time.Hour},
			SnapshotTTL:  duration{6 * time.Hour},
		},
		Lifecycle: LifecycleConfig{
			SweepInterval: duration{30 * time.Second},
			SweepBatch:    200,
		},
		Sources: SourcesConfig{
			S3Prefix:   "refined/",
			S3Interval: duration{5 * time.Second},
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8000,
			RatePerSec: 20,
			RateBurst:  40,
		},
		Notify: NotifyConfig{
			Events: []string{"wager_resolved", "wager_washed", "job_dead_lettered"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"worker": true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: worker, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	switch c.Store.Driver {
	case "postgres":
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, sqlite)", c.Store.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	} else if c.Sources.BusChannel != "" {
		errs = append(errs, "sources: bus_channel requires redis.enabled")
	}

	// Queue
	if c.Queue.Workers < 1 {
		errs = append(errs, "queue: workers must be >= 1")
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, "queue: max_attempts must be >= 1")
	}
	if c.Queue.BaseBackoff.Duration <= 0 {
		errs = append(errs, "queue: base_backoff must be > 0")
	}
	if c.Queue.MaxBackoff.Duration < c.Queue.BaseBackoff.Duration {
		errs = append(errs, "queue: max_backoff must be >= base_backoff")
	}
	if c.Queue.LeaseTTL.Duration <= 0 {
		errs = append(errs, "queue: lease_ttl must be > 0")
	}

	// Breaker
	if c.Breaker.Threshold < 1 {
		errs = append(errs, "breaker: threshold must be >= 1")
	}
	if c.Breaker.Cooldown.Duration <= 0 {
		errs = append(errs, "breaker: cooldown must be > 0")
	}

	if c.GameData.BaseURL != "" && c.GameData.RatePerSec <= 0 {
		errs = append(errs, "gamedata: rate_per_sec must be > 0")
	}

	// S3 source and evidence archive
	if c.Sources.S3Enabled || c.S3.ArchiveEvidence {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RatePerSec > 0 && c.Server.RateBurst < 1 {
			errs = append(errs, "server: rate_burst must be >= 1 when rate_per_sec is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
