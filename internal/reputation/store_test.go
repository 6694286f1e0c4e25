package reputation

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

type captureSink struct {
	got []domain.Event
}

func (c *captureSink) Emit(_ context.Context, ev domain.Event) {
	c.got = append(c.got, ev)
}

var solver = common.HexToAddress("0x1234")

func TestUpdateAppliesLogScaling(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&captureSink{})

	// 1024 has msb index 10: scaled delta is 1024*10/256 = 40.
	if got := s.Update(ctx, solver, 1024); got != 40 {
		t.Fatalf("score after +1024 = %d, want 40", got)
	}
	if got := s.Get(solver); got != 40 {
		t.Fatalf("Get = %d, want 40", got)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&captureSink{})

	deltas := []int64{1024, -1 << 20, 512, -1 << 30, -4096, 1 << 16}
	for _, d := range deltas {
		if score := s.Update(ctx, solver, d); score < 0 {
			t.Fatalf("score went negative (%d) after delta %d", score, d)
		}
	}
}

func TestNegativeDeltaSaturatesAtZero(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&captureSink{})

	s.Update(ctx, solver, 1024)            // score 40
	if got := s.Update(ctx, solver, -1<<20); got != 0 {
		t.Fatalf("score after large penalty = %d, want 0", got)
	}
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&captureSink{})
	s.Update(ctx, solver, 1024) // score 40

	if !s.Gate(solver, 40) {
		t.Error("gate rejected a score meeting the minimum")
	}
	if s.Gate(solver, 41) {
		t.Error("gate passed a score below the minimum")
	}
	if !s.Gate(common.HexToAddress("0x9999"), 0) {
		t.Error("zero minimum should pass for an unknown solver")
	}
}

func TestUpdateEmitsEvent(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	s := NewStore(sink)

	s.Update(ctx, solver, 1024)

	if len(sink.got) != 1 {
		t.Fatalf("emitted %d events, want 1", len(sink.got))
	}
	ev := sink.got[0]
	if ev.Type != domain.EventReputationUpdated {
		t.Fatalf("event type = %s", ev.Type)
	}
	if ev.Fields["delta"] != int64(1024) || ev.Fields["new_score"] != int64(40) {
		t.Errorf("unexpected fields: %v", ev.Fields)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&captureSink{})
	s.Update(ctx, solver, 1024)

	snap := s.Snapshot()
	s.Update(ctx, solver, 1<<20)
	if s.Get(solver) == 40 {
		t.Fatal("update after snapshot had no effect")
	}

	s.Restore(snap)
	if got := s.Get(solver); got != 40 {
		t.Fatalf("restored score = %d, want 40", got)
	}
}
