package auction

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/bitscale"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/crypto"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

type captureSink struct {
	got []domain.Event
}

func (c *captureSink) Emit(_ context.Context, ev domain.Event) {
	c.got = append(c.got, ev)
}

var (
	solverA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	solverB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	solverC = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	saltA = common.HexToHash("0x01")
	saltB = common.HexToHash("0x02")
	saltC = common.HexToHash("0x03")
)

// commitAndClose runs the commit phase for the given bids and closes the
// auction so reveals can follow.
func commitAndClose(t *testing.T, e *Engine, id uint64, bids map[common.Address]*uint256.Int, salts map[common.Address]common.Hash) {
	t.Helper()
	ctx := context.Background()
	e.Open(ctx, id)
	for solver, value := range bids {
		if err := e.Commit(ctx, id, solver, crypto.CommitmentHash(value, salts[solver])); err != nil {
			t.Fatalf("commit %s: %v", solver, err)
		}
	}
	e.Close(id)
}

func TestCommitRevealRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	value := uint256.NewInt(100)
	commitAndClose(t, e, 1,
		map[common.Address]*uint256.Int{solverA: value},
		map[common.Address]common.Hash{solverA: saltA},
	)

	if err := e.Reveal(ctx, 1, solverA, value, saltA); err != nil {
		t.Fatalf("valid reveal rejected: %v", err)
	}
}

func TestRevealMismatchRejectedNoEffect(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	value := uint256.NewInt(100)
	commitAndClose(t, e, 1,
		map[common.Address]*uint256.Int{solverA: value},
		map[common.Address]common.Hash{solverA: saltA},
	)

	// Wrong value.
	if err := e.Reveal(ctx, 1, solverA, uint256.NewInt(101), saltA); !errors.Is(err, domain.ErrInvalidBid) {
		t.Fatalf("wrong value: err = %v, want ErrInvalidBid", err)
	}
	// Wrong salt.
	if err := e.Reveal(ctx, 1, solverA, value, saltB); !errors.Is(err, domain.ErrInvalidBid) {
		t.Fatalf("wrong salt: err = %v, want ErrInvalidBid", err)
	}

	// No partial reveal state: settlement must find nothing.
	if _, _, err := e.Settle(ctx, 1, []common.Address{solverA}); !errors.Is(err, domain.ErrInvalidBid) {
		t.Fatalf("settle after rejected reveals: err = %v, want ErrInvalidBid", err)
	}
}

func TestCommitPhaseRules(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	// Commit before open.
	err := e.Commit(ctx, 1, solverA, saltA)
	if !errors.Is(err, domain.ErrAuctionNotOpen) {
		t.Fatalf("commit before open: err = %v", err)
	}

	e.Open(ctx, 1)

	// Reveal while still open.
	if err := e.Reveal(ctx, 1, solverA, uint256.NewInt(1), saltA); !errors.Is(err, domain.ErrAuctionStillOpen) {
		t.Fatalf("reveal while open: err = %v", err)
	}

	// Second commit from the same solver overwrites the first.
	v1, v2 := uint256.NewInt(100), uint256.NewInt(200)
	if err := e.Commit(ctx, 1, solverA, crypto.CommitmentHash(v1, saltA)); err != nil {
		t.Fatal(err)
	}
	if err := e.Commit(ctx, 1, solverA, crypto.CommitmentHash(v2, saltA)); err != nil {
		t.Fatal(err)
	}
	e.Close(1)

	if err := e.Reveal(ctx, 1, solverA, v1, saltA); !errors.Is(err, domain.ErrInvalidBid) {
		t.Fatalf("stale commitment honored: err = %v", err)
	}
	if err := e.Reveal(ctx, 1, solverA, v2, saltA); err != nil {
		t.Fatalf("latest commitment rejected: %v", err)
	}

	// Commit after close.
	if err := e.Commit(ctx, 1, solverB, saltB); !errors.Is(err, domain.ErrAuctionNotOpen) {
		t.Fatalf("commit after close: err = %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	// Never opened: no effect, no panic.
	e.Close(7)
	if _, err := e.Get(7); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("close created auction state")
	}

	e.Open(ctx, 7)
	e.Close(7)
	e.Close(7)
	v, err := e.Get(7)
	if err != nil {
		t.Fatal(err)
	}
	if v.Open {
		t.Error("auction still open after close")
	}
}

func TestSettlePicksMaxEffectiveBid(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	bids := map[common.Address]*uint256.Int{
		solverA: uint256.NewInt(1 << 10), // effective 1024*10/256 = 40
		solverB: uint256.NewInt(1 << 20), // effective 81920
		solverC: uint256.NewInt(1 << 15), // effective 32768*15/256 = 1920
	}
	salts := map[common.Address]common.Hash{solverA: saltA, solverB: saltB, solverC: saltC}
	commitAndClose(t, e, 1, bids, salts)
	for solver, value := range bids {
		if err := e.Reveal(ctx, 1, solver, value, salts[solver]); err != nil {
			t.Fatal(err)
		}
	}

	winner, winningBid, err := e.Settle(ctx, 1, []common.Address{solverA, solverB, solverC})
	if err != nil {
		t.Fatal(err)
	}
	if winner != solverB {
		t.Errorf("winner = %s, want %s", winner.Hex(), solverB.Hex())
	}
	if want := bitscale.Scale(bids[solverB]); !winningBid.Eq(want) {
		t.Errorf("winning bid = %s, want %s", winningBid, want)
	}
}

func TestSettleOnlyConsidersCandidates(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	bids := map[common.Address]*uint256.Int{
		solverA: uint256.NewInt(1 << 10),
		solverB: uint256.NewInt(1 << 20),
	}
	salts := map[common.Address]common.Hash{solverA: saltA, solverB: saltB}
	commitAndClose(t, e, 1, bids, salts)
	for solver, value := range bids {
		if err := e.Reveal(ctx, 1, solver, value, salts[solver]); err != nil {
			t.Fatal(err)
		}
	}

	// solverB has the highest bid but is not a candidate.
	winner, _, err := e.Settle(ctx, 1, []common.Address{solverA})
	if err != nil {
		t.Fatal(err)
	}
	if winner != solverA {
		t.Errorf("winner = %s, want candidate %s", winner.Hex(), solverA.Hex())
	}
}

func TestSettleNoValidRevealsIsInvalidBid(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	commitAndClose(t, e, 1,
		map[common.Address]*uint256.Int{solverA: uint256.NewInt(100)},
		map[common.Address]common.Hash{solverA: saltA},
	)

	// Nobody revealed.
	if _, _, err := e.Settle(ctx, 1, []common.Address{solverA, solverB}); !errors.Is(err, domain.ErrInvalidBid) {
		t.Fatalf("err = %v, want ErrInvalidBid", err)
	}
}

func TestTieBreakDeterministic(t *testing.T) {
	ctx := context.Background()

	// Both reveal the same value, so effective bids tie exactly.
	value := uint256.NewInt(100)
	runSettle := func(candidates []common.Address) common.Address {
		e := NewEngine(&captureSink{})
		bids := map[common.Address]*uint256.Int{solverA: value, solverB: value}
		salts := map[common.Address]common.Hash{solverA: saltA, solverB: saltB}
		commitAndClose(t, e, 1, bids, salts)
		for solver, v := range bids {
			if err := e.Reveal(ctx, 1, solver, v, salts[solver]); err != nil {
				t.Fatal(err)
			}
		}
		winner, _, err := e.Settle(ctx, 1, candidates)
		if err != nil {
			t.Fatal(err)
		}
		return winner
	}

	ab := runSettle([]common.Address{solverA, solverB})
	ba := runSettle([]common.Address{solverB, solverA})
	if ab != ba {
		t.Fatalf("tie-break depends on input order: %s vs %s", ab.Hex(), ba.Hex())
	}
}

func TestSettlementTerminalUntilReopen(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&captureSink{})

	value := uint256.NewInt(100)
	commitAndClose(t, e, 1,
		map[common.Address]*uint256.Int{solverA: value},
		map[common.Address]common.Hash{solverA: saltA},
	)
	if err := e.Reveal(ctx, 1, solverA, value, saltA); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Settle(ctx, 1, []common.Address{solverA}); err != nil {
		t.Fatal(err)
	}

	// Terminal: further settles and reveals rejected.
	if _, _, err := e.Settle(ctx, 1, []common.Address{solverA}); !errors.Is(err, domain.ErrAuctionSettled) {
		t.Fatalf("second settle: err = %v", err)
	}
	if err := e.Reveal(ctx, 1, solverA, value, saltA); !errors.Is(err, domain.ErrAuctionSettled) {
		t.Fatalf("reveal after settle: err = %v", err)
	}

	// Reopening clears and accepts a fresh round.
	e.Open(ctx, 1)
	v, err := e.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Open || v.Settled || v.Commitments != 0 || v.Reveals != 0 {
		t.Fatalf("reopen did not clear state: %+v", v)
	}
}

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	e := NewEngine(sink)

	value := uint256.NewInt(100)
	e.Open(ctx, 1)
	if err := e.Commit(ctx, 1, solverA, crypto.CommitmentHash(value, saltA)); err != nil {
		t.Fatal(err)
	}
	e.Close(1)
	if err := e.Reveal(ctx, 1, solverA, value, saltA); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Settle(ctx, 1, []common.Address{solverA}); err != nil {
		t.Fatal(err)
	}

	want := []domain.EventType{
		domain.EventAuctionOpened,
		domain.EventBidCommitted,
		domain.EventBidRevealed,
		domain.EventAuctionSettled,
	}
	if len(sink.got) != len(want) {
		t.Fatalf("emitted %d events, want %d", len(sink.got), len(want))
	}
	for i, w := range want {
		if sink.got[i].Type != w {
			t.Errorf("event %d = %s, want %s", i, sink.got[i].Type, w)
		}
	}
}
