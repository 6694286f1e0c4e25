package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/auction"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// AuctionService fronts the commit-reveal engine. When settlement is called
// without an explicit candidate list it asks the indexer-backed
// CandidateSource for every solver with a recorded reveal.
type AuctionService struct {
	engine     *auction.Engine
	candidates domain.CandidateSource
	logger     *slog.Logger
}

// NewAuctionService creates an AuctionService. candidates may be nil, in
// which case Settle requires an explicit list.
func NewAuctionService(engine *auction.Engine, candidates domain.CandidateSource, logger *slog.Logger) *AuctionService {
	return &AuctionService{
		engine:     engine,
		candidates: candidates,
		logger:     logger.With(slog.String("component", "auction_service")),
	}
}

// Open starts (or restarts) an auction round.
func (s *AuctionService) Open(ctx context.Context, id uint64) {
	s.engine.Open(ctx, id)
}

// Commit records a solver's sealed bid hash.
func (s *AuctionService) Commit(ctx context.Context, id uint64, solver common.Address, hash common.Hash) error {
	return s.engine.Commit(ctx, id, solver, hash)
}

// Close ends the commitment phase.
func (s *AuctionService) Close(id uint64) {
	s.engine.Close(id)
}

// Reveal opens a sealed bid.
func (s *AuctionService) Reveal(ctx context.Context, id uint64, solver common.Address, value *uint256.Int, salt common.Hash) error {
	return s.engine.Reveal(ctx, id, solver, value, salt)
}

// Settle picks the winner among the candidates. An empty candidate list is
// filled from the CandidateSource.
func (s *AuctionService) Settle(ctx context.Context, id uint64, candidates []common.Address) (common.Address, *uint256.Int, error) {
	if len(candidates) == 0 {
		if s.candidates == nil {
			return common.Address{}, nil, fmt.Errorf("service: settle %d: no candidates and no candidate source", id)
		}
		var err error
		candidates, err = s.candidates.RevealedSolvers(ctx, id)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("service: settle %d: candidate lookup: %w", id, err)
		}
		s.logger.Debug("candidates from indexer",
			slog.Uint64("auction_id", id),
			slog.Int("count", len(candidates)))
	}
	return s.engine.Settle(ctx, id, candidates)
}

// Get returns a read-only view of the auction.
func (s *AuctionService) Get(id uint64) (auction.View, error) {
	return s.engine.Get(id)
}
