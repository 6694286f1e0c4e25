package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/compliance"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/resolver"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/sim"
)

// memLocks is an in-process stand-in for the Redis lock manager.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		delete(m.held, key)
		m.mu.Unlock()
	}, nil
}

var (
	admin   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	solverA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	intent1 = common.HexToHash("0x01")
	intent2 = common.HexToHash("0x02")
)

func nopSink() domain.EventSink {
	return domain.EventSinkFunc(func(context.Context, domain.Event) {})
}

func newService(t *testing.T, locks domain.LockManager) *ResolutionService {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := compliance.NewRegistry(nopSink())
	reg.SetFlags(ctx, solverA, 0x1)
	coord := resolver.NewCoordinator(resolver.Config{
		Admin:         admin,
		RequiredFlags: 0x1,
		RewardDelta:   1 << 16,
	}, reg, sim.NewExecutor(logger), nil, nil, nopSink(), logger)

	svc := NewResolutionService(coord, locks, logger)
	if err := svc.Submit(ctx, intent1, solverA, []byte("swap")); err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestResolveHeldLockRefused(t *testing.T) {
	ctx := context.Background()
	locks := newMemLocks()
	svc := newService(t, locks)

	release, err := locks.Acquire(ctx, intentLockKey(intent1), time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	err = svc.Resolve(ctx, intent1, solverA, domain.ExecData{})
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
	in, getErr := svc.Get(intent1)
	if getErr != nil {
		t.Fatal(getErr)
	}
	if in.Status != domain.IntentSubmitted {
		t.Error("locked intent mutated")
	}

	release()
	if err := svc.Resolve(ctx, intent1, solverA, domain.ExecData{}); err != nil {
		t.Fatalf("resolve after release: %v", err)
	}
}

func TestBatchReleasesLocksOnLockFailure(t *testing.T) {
	ctx := context.Background()
	locks := newMemLocks()
	svc := newService(t, locks)
	if err := svc.Submit(ctx, intent2, solverA, []byte("swap-2")); err != nil {
		t.Fatal(err)
	}

	// Holding the second intent's lock forces the batch to back out.
	release, err := locks.Acquire(ctx, intentLockKey(intent2), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	err = svc.BatchResolve(ctx, []common.Hash{intent1, intent2}, []common.Address{solverA, solverA})
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
	release()

	// The first intent's lock must have been released by the failed batch.
	if err := svc.BatchResolve(ctx, []common.Hash{intent1, intent2}, []common.Address{solverA, solverA}); err != nil {
		t.Fatalf("batch after release: %v", err)
	}
	for _, id := range []common.Hash{intent1, intent2} {
		in, getErr := svc.Get(id)
		if getErr != nil {
			t.Fatal(getErr)
		}
		if in.Status != domain.IntentResolved {
			t.Errorf("intent %s status = %s, want resolved", id, in.Status)
		}
	}
}
