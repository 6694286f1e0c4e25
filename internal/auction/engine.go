// Package auction implements the sealed-bid commit-reveal engine that
// decides which solver earns the right to resolve intents. Each auction id
// moves Closed -> Open -> Settled; reopening clears prior state.
package auction

import (
	"bytes"
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/bitscale"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/crypto"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

type reveal struct {
	value     *uint256.Int
	salt      common.Hash
	effective *uint256.Int
}

type state struct {
	open        bool
	settled     bool
	commitments map[common.Address]common.Hash
	reveals     map[common.Address]*reveal
	winner      common.Address
	winningBid  *uint256.Int
}

// Engine holds every auction's commit-reveal state. All operations are
// atomic under a single lock.
type Engine struct {
	mu       sync.Mutex
	auctions map[uint64]*state
	sink     domain.EventSink
}

// NewEngine creates an Engine emitting to sink.
func NewEngine(sink domain.EventSink) *Engine {
	return &Engine{
		auctions: make(map[uint64]*state),
		sink:     sink,
	}
}

// Open starts (or restarts) an auction round, discarding any prior
// commitments, reveals, and settlement for the id.
func (e *Engine) Open(ctx context.Context, id uint64) {
	e.mu.Lock()
	e.auctions[id] = &state{
		open:        true,
		commitments: make(map[common.Address]common.Hash),
		reveals:     make(map[common.Address]*reveal),
	}
	e.mu.Unlock()

	e.sink.Emit(ctx, domain.NewEvent(domain.EventAuctionOpened, map[string]any{
		"auction_id": id,
	}))
}

// Commit records a solver's sealed bid hash. A later commit from the same
// solver overwrites the earlier one.
func (e *Engine) Commit(ctx context.Context, id uint64, solver common.Address, hash common.Hash) error {
	e.mu.Lock()
	st, ok := e.auctions[id]
	if !ok || !st.open {
		e.mu.Unlock()
		return domain.ErrAuctionNotOpen
	}
	st.commitments[solver] = hash
	e.mu.Unlock()

	e.sink.Emit(ctx, domain.NewEvent(domain.EventBidCommitted, map[string]any{
		"auction_id": id,
		"solver":     solver.Hex(),
	}))
	return nil
}

// Close ends the commitment phase. Closing an unopened or already-closed
// auction has no additional effect.
func (e *Engine) Close(id uint64) {
	e.mu.Lock()
	st, ok := e.auctions[id]
	if !ok || !st.open {
		e.mu.Unlock()
		return
	}
	st.open = false
	e.mu.Unlock()
}

// Reveal opens a sealed bid after the commitment phase. The (value, salt)
// pair must hash to the stored commitment; a mismatch is rejected with no
// partial effect. The log-scaled effective bid is stored for settlement.
func (e *Engine) Reveal(ctx context.Context, id uint64, solver common.Address, value *uint256.Int, salt common.Hash) error {
	e.mu.Lock()
	st, ok := e.auctions[id]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	if st.open {
		e.mu.Unlock()
		return domain.ErrAuctionStillOpen
	}
	if st.settled {
		e.mu.Unlock()
		return domain.ErrAuctionSettled
	}
	commitment, ok := st.commitments[solver]
	if !ok || crypto.CommitmentHash(value, salt) != commitment {
		e.mu.Unlock()
		return domain.ErrInvalidBid
	}
	st.reveals[solver] = &reveal{
		value:     new(uint256.Int).Set(value),
		salt:      salt,
		effective: bitscale.Scale(value),
	}
	e.mu.Unlock()

	e.sink.Emit(ctx, domain.NewEvent(domain.EventBidRevealed, map[string]any{
		"auction_id": id,
		"solver":     solver.Hex(),
		"value":      value.String(),
	}))
	return nil
}

// Settle picks the winner among the supplied candidates that hold a valid
// reveal: the maximum effective bid wins, with ties broken by the smallest
// tie-break digest so the outcome is insensitive to candidate order.
// Settlement is terminal until the auction is reopened.
func (e *Engine) Settle(ctx context.Context, id uint64, candidates []common.Address) (common.Address, *uint256.Int, error) {
	e.mu.Lock()
	st, ok := e.auctions[id]
	if !ok {
		e.mu.Unlock()
		return common.Address{}, nil, domain.ErrNotFound
	}
	if st.settled {
		e.mu.Unlock()
		return common.Address{}, nil, domain.ErrAuctionSettled
	}

	var (
		winner     common.Address
		winnerTie  common.Hash
		winningBid *uint256.Int
		seen       = make(map[common.Address]bool, len(candidates))
	)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true

		rv, ok := st.reveals[c]
		if !ok {
			continue
		}
		tie := crypto.TieBreakHash(id, c)
		switch {
		case winningBid == nil,
			rv.effective.Gt(winningBid),
			rv.effective.Eq(winningBid) && bytes.Compare(tie[:], winnerTie[:]) < 0:
			winner = c
			winnerTie = tie
			winningBid = rv.effective
		}
	}
	if winningBid == nil {
		e.mu.Unlock()
		return common.Address{}, nil, domain.ErrInvalidBid
	}

	st.settled = true
	st.open = false
	st.winner = winner
	st.winningBid = new(uint256.Int).Set(winningBid)
	e.mu.Unlock()

	e.sink.Emit(ctx, domain.NewEvent(domain.EventAuctionSettled, map[string]any{
		"auction_id":  id,
		"winner":      winner.Hex(),
		"winning_bid": winningBid.String(),
	}))
	return winner, new(uint256.Int).Set(winningBid), nil
}

// View is a read-only snapshot of one auction's state.
type View struct {
	ID          uint64
	Open        bool
	Settled     bool
	Commitments int
	Reveals     int
	Winner      common.Address
	WinningBid  *uint256.Int
}

// Get returns a snapshot of the auction, or ErrNotFound.
func (e *Engine) Get(id uint64) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.auctions[id]
	if !ok {
		return View{}, domain.ErrNotFound
	}
	v := View{
		ID:          id,
		Open:        st.open,
		Settled:     st.settled,
		Commitments: len(st.commitments),
		Reveals:     len(st.reveals),
		Winner:      st.winner,
	}
	if st.winningBid != nil {
		v.WinningBid = new(uint256.Int).Set(st.winningBid)
	}
	return v, nil
}

// Winner returns the settled winner for an auction, or ErrNotFound when the
// auction does not exist or has not settled.
func (e *Engine) Winner(id uint64) (common.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.auctions[id]
	if !ok || !st.settled {
		return common.Address{}, domain.ErrNotFound
	}
	return st.winner, nil
}

// Snapshot is an opaque deep copy of the engine state.
type Snapshot map[uint64]*state

// Snapshot deep-copies the engine state for unit-of-work rollback.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := make(Snapshot, len(e.auctions))
	for id, st := range e.auctions {
		cp := &state{
			open:        st.open,
			settled:     st.settled,
			commitments: make(map[common.Address]common.Hash, len(st.commitments)),
			reveals:     make(map[common.Address]*reveal, len(st.reveals)),
			winner:      st.winner,
		}
		for k, v := range st.commitments {
			cp.commitments[k] = v
		}
		for k, v := range st.reveals {
			cp.reveals[k] = &reveal{
				value:     new(uint256.Int).Set(v.value),
				salt:      v.salt,
				effective: new(uint256.Int).Set(v.effective),
			}
		}
		if st.winningBid != nil {
			cp.winningBid = new(uint256.Int).Set(st.winningBid)
		}
		snap[id] = cp
	}
	return snap
}

// Restore replaces the engine state with a previously taken snapshot.
func (e *Engine) Restore(snap Snapshot) {
	e.mu.Lock()
	e.auctions = snap
	e.mu.Unlock()
}
