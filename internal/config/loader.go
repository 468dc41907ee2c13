package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RESOLVER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RESOLVER_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Store.Driver, "RESOLVER_STORE_DRIVER")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "RESOLVER_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "RESOLVER_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "RESOLVER_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "RESOLVER_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "RESOLVER_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "RESOLVER_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "RESOLVER_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "RESOLVER_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "RESOLVER_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "RESOLVER_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "RESOLVER_SUPABASE_RUN_MIGRATIONS")

	setStr(&cfg.SQLite.Path, "RESOLVER_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RESOLVER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RESOLVER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RESOLVER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RESOLVER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RESOLVER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RESOLVER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RESOLVER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "RESOLVER_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "RESOLVER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RESOLVER_S3_REGION")
	setStr(&cfg.S3.Bucket, "RESOLVER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RESOLVER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RESOLVER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RESOLVER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RESOLVER_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveEvidence, "RESOLVER_S3_ARCHIVE_EVIDENCE")

	// ── Queue ──
	setInt(&cfg.Queue.Workers, "RESOLVER_QUEUE_WORKERS")
	setInt(&cfg.Queue.MaxAttempts, "RESOLVER_QUEUE_MAX_ATTEMPTS")
	setDuration(&cfg.Queue.BaseBackoff, "RESOLVER_QUEUE_BASE_BACKOFF")
	setDuration(&cfg.Queue.MaxBackoff, "RESOLVER_QUEUE_MAX_BACKOFF")
	setDuration(&cfg.Queue.PollInterval, "RESOLVER_QUEUE_POLL_INTERVAL")
	setDuration(&cfg.Queue.LeaseTTL, "RESOLVER_QUEUE_LEASE_TTL")
	setDuration(&cfg.Queue.CompletedRetention, "RESOLVER_QUEUE_COMPLETED_RETENTION")
	setDuration(&cfg.Queue.FailedRetention, "RESOLVER_QUEUE_FAILED_RETENTION")

	// ── Breaker ──
	setInt(&cfg.Breaker.Threshold, "RESOLVER_BREAKER_THRESHOLD")
	setDuration(&cfg.Breaker.Cooldown, "RESOLVER_BREAKER_COOLDOWN")

	// ── Game data ──
	setStr(&cfg.GameData.BaseURL, "RESOLVER_GAMEDATA_BASE_URL")
	setStr(&cfg.GameData.APIKey, "RESOLVER_GAMEDATA_API_KEY")
	setFloat64(&cfg.GameData.RatePerSec, "RESOLVER_GAMEDATA_RATE_PER_SEC")
	setInt(&cfg.GameData.Burst, "RESOLVER_GAMEDATA_BURST")
	setDuration(&cfg.GameData.Timeout, "RESOLVER_GAMEDATA_TIMEOUT")

	setDuration(&cfg.Detector.SignatureTTL, "RESOLVER_DETECTOR_SIGNATURE_TTL")
	setDuration(&cfg.Detector.SnapshotTTL, "RESOLVER_DETECTOR_SNAPSHOT_TTL")
	setDuration(&cfg.Lifecycle.SweepInterval, "RESOLVER_LIFECYCLE_SWEEP_INTERVAL")
	setInt(&cfg.Lifecycle.SweepBatch, "RESOLVER_LIFECYCLE_SWEEP_BATCH")

	// ── Sources ──
	setStr(&cfg.Sources.WebSocketURL, "RESOLVER_SOURCES_WEBSOCKET_URL")
	setBool(&cfg.Sources.S3Enabled, "RESOLVER_SOURCES_S3_ENABLED")
	setStr(&cfg.Sources.S3Prefix, "RESOLVER_SOURCES_S3_PREFIX")
	setDuration(&cfg.Sources.S3Interval, "RESOLVER_SOURCES_S3_INTERVAL")
	setStr(&cfg.Sources.BusChannel, "RESOLVER_SOURCES_BUS_CHANNEL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RESOLVER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RESOLVER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "RESOLVER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "RESOLVER_SERVER_CORS_ORIGINS")
	setFloat64(&cfg.Server.RatePerSec, "RESOLVER_SERVER_RATE_PER_SEC")
	setInt(&cfg.Server.RateBurst, "RESOLVER_SERVER_RATE_BURST")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RESOLVER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RESOLVER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RESOLVER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RESOLVER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "RESOLVER_MODE")
	setStr(&cfg.LogLevel, "RESOLVER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
