// Package config defines the top-level configuration for the solver daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLVERD_* environment variables.
type Config struct {
	Resolver Resolver       `toml:"resolver"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Sim      SimConfig      `toml:"sim"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// Resolver holds the gating thresholds for the resolution core.
type Resolver struct {
	// Admin is the hex address allowed to adjust reputation, abandon
	// intents, set compliance flags, and authorize treasury withdrawals.
	Admin string `toml:"admin"`
	// RequiredFlags is the compliance bitmask a solver must carry in full.
	RequiredFlags uint64 `toml:"required_flags"`
	// MinReputation is the score floor for resolving intents.
	MinReputation int64 `toml:"min_reputation"`
	// MinEntropyBits rejects call patterns whose hash has its most
	// significant bit below this index (0-255).
	MinEntropyBits uint `toml:"min_entropy_bits"`
	// MinLoanMagnitude is the dust floor for flashloan draws, expressed as
	// a most-significant-bit index.
	MinLoanMagnitude uint `toml:"min_loan_magnitude"`
	// RewardDelta is the raw reputation delta credited per successful
	// resolution, before log scaling.
	RewardDelta int64 `toml:"reward_delta"`
}

// AdminAddress parses Resolver.Admin. Validate guarantees it parses for the
// modes that need it.
func (r Resolver) AdminAddress() common.Address {
	return common.HexToAddress(r.Admin)
}

// PostgresConfig holds connection parameters for the event journal.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters for the event stream and the
// distributed resolution locks.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for journal
// archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the journal-to-S3 archive loop.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// SimConfig parameterizes the simulate mode's loan pools.
type SimConfig struct {
	// Providers is the number of simulated flashloan pools.
	Providers int `toml:"providers"`
	// FailFirst makes the leading N pools refuse every borrow, exercising
	// the failover path.
	FailFirst int    `toml:"fail_first"`
	FeeBps    uint64 `toml:"fee_bps"`
	// Liquidity per pool per token, in raw units.
	Liquidity uint64 `toml:"liquidity"`
	// Tokens lists hex token addresses to seed pool liquidity for.
	Tokens []string `toml:"tokens"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the privileged admin routes. Empty disables them.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Resolver: Resolver{
			RequiredFlags:    0x1,
			MinReputation:    0,
			MinEntropyBits:   240,
			MinLoanMagnitude: 16,
			RewardDelta:      1 << 16,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "solverd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 100_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "solverd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{6 * time.Hour},
		},
		Sim: SimConfig{
			Providers: 3,
			FailFirst: 2,
			FeeBps:    9,
			Liquidity: 1 << 40,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"auction_settled", "flashloan_executed", "intent_resolved"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":    true,
	"simulate": true,
	"archive":  true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, simulate, archive)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Resolver
	if c.Mode == "serve" {
		if c.Resolver.Admin == "" {
			errs = append(errs, "resolver: admin address must be set for mode serve")
		} else if !common.IsHexAddress(c.Resolver.Admin) {
			errs = append(errs, fmt.Sprintf("resolver: admin %q is not a hex address", c.Resolver.Admin))
		}
	}
	if c.Resolver.MinEntropyBits > 255 {
		errs = append(errs, fmt.Sprintf("resolver: min_entropy_bits must be 0-255, got %d", c.Resolver.MinEntropyBits))
	}
	if c.Resolver.MinLoanMagnitude > 255 {
		errs = append(errs, fmt.Sprintf("resolver: min_loan_magnitude must be 0-255, got %d", c.Resolver.MinLoanMagnitude))
	}
	if c.Resolver.RewardDelta <= 0 {
		errs = append(errs, "resolver: reward_delta must be > 0")
	}
	if c.Resolver.MinReputation < 0 {
		errs = append(errs, "resolver: min_reputation must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.StreamMaxLen < 1 {
		errs = append(errs, "redis: stream_max_len must be >= 1")
	}

	// S3 — only required when the archive loop is on.
	if c.Archive.Enabled || c.Mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Sim
	if c.Mode == "simulate" {
		if c.Sim.Providers < 1 {
			errs = append(errs, "sim: providers must be >= 1")
		}
		if c.Sim.FailFirst >= c.Sim.Providers {
			errs = append(errs, "sim: fail_first must leave at least one working provider")
		}
		if c.Sim.Liquidity == 0 {
			errs = append(errs, "sim: liquidity must be > 0")
		}
	}
	for _, t := range c.Sim.Tokens {
		if !common.IsHexAddress(t) {
			errs = append(errs, fmt.Sprintf("sim: invalid token address %q", t))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
