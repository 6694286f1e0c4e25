package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/auction"
	s3blob "github.com/mrheyday/futarchy-arbitrage-sub000/internal/blob/s3"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/cache/redis"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/compliance"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/config"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/events"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/notify"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/resolver"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/service"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/sim"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/store/postgres"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/treasury"
)

// Dependencies bundles everything the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Infrastructure
	Journal     domain.EventJournal   // nil in simulate mode
	Candidates  domain.CandidateSource // nil in simulate mode
	LockManager domain.LockManager    // nil in simulate mode
	RateLimiter domain.RateLimiter    // nil in simulate mode
	StreamBus   domain.StreamBus      // nil in simulate mode
	Archiver    *s3blob.Archiver      // nil unless archiving is wired
	Notifier    *notify.Notifier

	// Event fan-out
	Bus *events.Bus

	// Core
	Registry    *compliance.Registry
	Treasury    *treasury.Ledger
	Engine      *auction.Engine
	Coordinator *resolver.Coordinator
	Resolution  *service.ResolutionService
	Auctions    *service.AuctionService

	// Simulated collaborators
	Pools     []*sim.LoanPool
	Providers []domain.FlashloanProvider

	StartedAt time.Time
}

// needsPostgres returns true for modes that require the durable journal.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "archive":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that require the live bus and locks.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || (cfg.Mode == "serve" && cfg.Archive.Enabled)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{StartedAt: time.Now().UTC()}

	// --- PostgreSQL journal (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		journal := postgres.NewEventJournal(pgClient.Pool())
		deps.Journal = journal
		deps.Candidates = journal
	}

	// --- Redis (live bus, locks, rate limiting) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.StreamBus = redis.NewStreamBus(redisClient, cfg.Redis.StreamMaxLen)
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Journal,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Event fan-out ---
	sinks := []domain.EventSink{events.NewLogSink(logger)}
	if deps.Journal != nil {
		sinks = append(sinks, events.NewJournalSink(deps.Journal, logger))
	}
	if deps.StreamBus != nil {
		sinks = append(sinks, events.NewStreamSink(deps.StreamBus, logger))
	}
	if len(senders) > 0 {
		sinks = append(sinks, notify.NewEventSink(deps.Notifier))
	}
	deps.Bus = events.NewBus(logger, sinks...)

	// --- Simulated collaborators ---
	deps.Pools, deps.Providers = buildPools(cfg.Sim)

	// --- Core ---
	deps.Registry = compliance.NewRegistry(deps.Bus)
	deps.Treasury = treasury.NewLedger(cfg.Resolver.AdminAddress(), deps.Bus)
	deps.Engine = auction.NewEngine(deps.Bus)
	deps.Coordinator = resolver.NewCoordinator(
		resolver.Config{
			Admin:            cfg.Resolver.AdminAddress(),
			RequiredFlags:    cfg.Resolver.RequiredFlags,
			MinReputation:    cfg.Resolver.MinReputation,
			MinEntropyBits:   cfg.Resolver.MinEntropyBits,
			MinLoanMagnitude: cfg.Resolver.MinLoanMagnitude,
			RewardDelta:      cfg.Resolver.RewardDelta,
		},
		deps.Registry,
		sim.NewExecutor(logger),
		nil, // no proof verifier wired; the gate skips it
		deps.Providers,
		deps.Bus,
		logger,
	)

	locks := deps.LockManager
	if locks == nil {
		locks = noopLocks{}
	}
	deps.Resolution = service.NewResolutionService(deps.Coordinator, locks, logger)
	deps.Auctions = service.NewAuctionService(deps.Engine, deps.Candidates, logger)

	return deps, cleanup, nil
}

// buildPools creates the simulated flashloan pools. The first FailFirst
// pools are left unfunded so borrows against them fail, exercising the
// failover path; the rest are seeded with the configured liquidity for each
// configured token.
func buildPools(cfg config.SimConfig) ([]*sim.LoanPool, []domain.FlashloanProvider) {
	pools := make([]*sim.LoanPool, 0, cfg.Providers)
	providers := make([]domain.FlashloanProvider, 0, cfg.Providers)
	for i := 0; i < cfg.Providers; i++ {
		pool := sim.NewLoanPool(fmt.Sprintf("sim-pool-%d", i), cfg.FeeBps)
		if i >= cfg.FailFirst {
			for _, raw := range cfg.Tokens {
				pool.Fund(common.HexToAddress(raw), uint256.NewInt(cfg.Liquidity))
			}
		}
		pools = append(pools, pool)
		providers = append(providers, pool)
	}
	return pools, providers
}

// noopLocks is the lock manager for single-process modes with no Redis.
type noopLocks struct{}

func (noopLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
