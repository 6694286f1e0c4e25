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
// built-in defaults, applies SOLVERD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SOLVERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Resolver ──
	setStr(&cfg.Resolver.Admin, "SOLVERD_RESOLVER_ADMIN")
	setUint64(&cfg.Resolver.RequiredFlags, "SOLVERD_RESOLVER_REQUIRED_FLAGS")
	setInt64(&cfg.Resolver.MinReputation, "SOLVERD_RESOLVER_MIN_REPUTATION")
	setUint(&cfg.Resolver.MinEntropyBits, "SOLVERD_RESOLVER_MIN_ENTROPY_BITS")
	setUint(&cfg.Resolver.MinLoanMagnitude, "SOLVERD_RESOLVER_MIN_LOAN_MAGNITUDE")
	setInt64(&cfg.Resolver.RewardDelta, "SOLVERD_RESOLVER_REWARD_DELTA")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SOLVERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SOLVERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOLVERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOLVERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOLVERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOLVERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOLVERD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SOLVERD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SOLVERD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SOLVERD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SOLVERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLVERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLVERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOLVERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOLVERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOLVERD_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "SOLVERD_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SOLVERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SOLVERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SOLVERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SOLVERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SOLVERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SOLVERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SOLVERD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SOLVERD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SOLVERD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SOLVERD_ARCHIVE_INTERVAL")

	// ── Sim ──
	setInt(&cfg.Sim.Providers, "SOLVERD_SIM_PROVIDERS")
	setInt(&cfg.Sim.FailFirst, "SOLVERD_SIM_FAIL_FIRST")
	setUint64(&cfg.Sim.FeeBps, "SOLVERD_SIM_FEE_BPS")
	setUint64(&cfg.Sim.Liquidity, "SOLVERD_SIM_LIQUIDITY")
	setStringSlice(&cfg.Sim.Tokens, "SOLVERD_SIM_TOKENS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOLVERD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOLVERD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SOLVERD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SOLVERD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLVERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLVERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLVERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLVERD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLVERD_MODE")
	setStr(&cfg.LogLevel, "SOLVERD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint(dst *uint, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = uint(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 0, 64); err == nil {
			*dst = n
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
