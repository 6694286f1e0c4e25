package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/crypto"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/server"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/server/handler"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/server/ws"
)

// ServeMode runs the HTTP + WebSocket API, bridging the live event feed and
// periodically archiving old journal entries to object storage. It blocks
// until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.StreamBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: deps.StartedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Intents:  handler.NewIntentHandler(deps.Resolution, a.logger),
		Auctions: handler.NewAuctionHandler(deps.Auctions, a.logger),
		Treasury: handler.NewTreasuryHandler(deps.Treasury, a.logger),
		Solvers: handler.NewSolverHandler(
			deps.Resolution,
			deps.Registry,
			a.cfg.Resolver.AdminAddress(),
			a.cfg.Resolver.RequiredFlags,
			a.logger,
		),
		Events: handler.NewEventHandler(deps.Journal, deps.StreamBus, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: serve mode: %w", err)
	}
	return nil
}

// archiveLoop drains old journal entries to object storage on the configured
// interval. One failed sweep is logged, not fatal; the next tick retries.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			n, err := deps.Archiver.Archive(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archive sweep complete",
					slog.Int64("events", n),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// ArchiveMode runs a single archive sweep and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return errors.New("app: archive mode requires S3 configuration")
	}

	cutoff := time.Now().UTC().Add(-time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour)
	n, err := deps.Archiver.Archive(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}

	a.logger.InfoContext(ctx, "archive complete",
		slog.Int64("events", n),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// SimulateMode runs one scripted coordination round against the in-memory
// collaborators: a commit-reveal auction, an unfunded resolution by the
// winner, a flashloan-funded resolution with provider failover, and an
// atomic batch. It exercises every core path without external services.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode",
		slog.Int("providers", a.cfg.Sim.Providers),
		slog.Int("fail_first", a.cfg.Sim.FailFirst),
	)

	var (
		solverA = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
		solverB = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
		token   = common.HexToAddress("0x0000000000000000000000000000000000001001")
	)
	if len(a.cfg.Sim.Tokens) > 0 {
		token = common.HexToAddress(a.cfg.Sim.Tokens[0])
	}

	// Seed liquidity for the scripted token on every working pool.
	for i, pool := range deps.Pools {
		if i >= a.cfg.Sim.FailFirst {
			pool.Fund(token, uint256.NewInt(a.cfg.Sim.Liquidity))
		}
	}

	// Both solvers clear the compliance gate.
	deps.Registry.SetFlags(ctx, solverA, a.cfg.Resolver.RequiredFlags)
	deps.Registry.SetFlags(ctx, solverB, a.cfg.Resolver.RequiredFlags)

	// Treasury backing for the round.
	deps.Treasury.Deposit(ctx, a.cfg.Resolver.AdminAddress(), token, uint256.NewInt(a.cfg.Sim.Liquidity))

	// --- Commit-reveal auction ---
	const auctionID = 1
	var (
		bidA  = uint256.NewInt(1 << 20)
		bidB  = uint256.NewInt(1 << 24)
		saltA = common.HexToHash("0x01")
		saltB = common.HexToHash("0x02")
	)

	deps.Engine.Open(ctx, auctionID)
	if err := deps.Engine.Commit(ctx, auctionID, solverA, crypto.CommitmentHash(bidA, saltA)); err != nil {
		return fmt.Errorf("app: simulate: commit: %w", err)
	}
	if err := deps.Engine.Commit(ctx, auctionID, solverB, crypto.CommitmentHash(bidB, saltB)); err != nil {
		return fmt.Errorf("app: simulate: commit: %w", err)
	}
	deps.Engine.Close(auctionID)
	if err := deps.Engine.Reveal(ctx, auctionID, solverA, bidA, saltA); err != nil {
		return fmt.Errorf("app: simulate: reveal: %w", err)
	}
	if err := deps.Engine.Reveal(ctx, auctionID, solverB, bidB, saltB); err != nil {
		return fmt.Errorf("app: simulate: reveal: %w", err)
	}

	winner, winningBid, err := deps.Engine.Settle(ctx, auctionID, []common.Address{solverA, solverB})
	if err != nil {
		return fmt.Errorf("app: simulate: settle: %w", err)
	}
	a.logger.InfoContext(ctx, "auction settled",
		slog.String("winner", winner.Hex()),
		slog.String("winning_bid", winningBid.String()),
	)

	// --- Unfunded resolution by the auction winner ---
	payload := []byte("rebalance conditional pools")
	intent1 := common.BytesToHash(ethcrypto.Keccak256([]byte("sim-intent-1")))
	if err := deps.Coordinator.SubmitIntent(ctx, intent1, a.cfg.Resolver.AdminAddress(), payload); err != nil {
		return fmt.Errorf("app: simulate: submit: %w", err)
	}
	if err := deps.Coordinator.ResolveIntent(ctx, intent1, winner, domain.ExecData{}); err != nil {
		return fmt.Errorf("app: simulate: resolve: %w", err)
	}

	// --- Funded resolution with provider failover ---
	intent2 := common.BytesToHash(ethcrypto.Keccak256([]byte("sim-intent-2")))
	if err := deps.Coordinator.SubmitIntent(ctx, intent2, a.cfg.Resolver.AdminAddress(), payload); err != nil {
		return fmt.Errorf("app: simulate: submit: %w", err)
	}
	loan := uint256.NewInt(a.cfg.Sim.Liquidity / 2)
	if err := deps.Coordinator.ResolveIntent(ctx, intent2, winner, domain.ExecData{
		LoanToken:  token,
		LoanAmount: loan,
	}); err != nil {
		return fmt.Errorf("app: simulate: funded resolve: %w", err)
	}
	for _, pool := range deps.Pools {
		a.logger.InfoContext(ctx, "pool state",
			slog.String("pool", pool.Name()),
			slog.Int("cycles", pool.Cycles()),
			slog.String("liquidity", pool.Liquidity(token).String()),
		)
	}

	// --- Atomic batch ---
	intent3 := common.BytesToHash(ethcrypto.Keccak256([]byte("sim-intent-3")))
	intent4 := common.BytesToHash(ethcrypto.Keccak256([]byte("sim-intent-4")))
	for _, id := range []common.Hash{intent3, intent4} {
		if err := deps.Coordinator.SubmitIntent(ctx, id, a.cfg.Resolver.AdminAddress(), payload); err != nil {
			return fmt.Errorf("app: simulate: submit: %w", err)
		}
	}
	if err := deps.Coordinator.BatchResolve(ctx,
		[]common.Hash{intent3, intent4},
		[]common.Address{solverA, solverB},
	); err != nil {
		return fmt.Errorf("app: simulate: batch: %w", err)
	}

	// --- Abandonment ---
	intent5 := common.BytesToHash(ethcrypto.Keccak256([]byte("sim-intent-5")))
	if err := deps.Coordinator.SubmitIntent(ctx, intent5, a.cfg.Resolver.AdminAddress(), payload); err != nil {
		return fmt.Errorf("app: simulate: submit: %w", err)
	}
	if err := deps.Coordinator.AbandonIntent(ctx, a.cfg.Resolver.AdminAddress(), intent5); err != nil {
		return fmt.Errorf("app: simulate: abandon: %w", err)
	}

	a.logger.InfoContext(ctx, "simulation complete",
		slog.Int64("reputation_a", deps.Coordinator.Reputation(solverA)),
		slog.Int64("reputation_b", deps.Coordinator.Reputation(solverB)),
		slog.String("treasury_balance", deps.Treasury.Balance(token).String()),
	)
	return nil
}
