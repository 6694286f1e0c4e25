// Package service wraps the resolution core with the cross-replica concerns
// the HTTP layer needs: distributed locking and indexer-backed candidate
// lookups.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/resolver"
)

// resolveLockTTL bounds how long a crashed replica can hold an intent lock.
const resolveLockTTL = 30 * time.Second

// ResolutionService serializes resolution attempts per intent across
// replicas. The coordinator's own busy flag rejects reentrancy inside one
// process; the distributed lock extends that to the fleet.
type ResolutionService struct {
	coord  *resolver.Coordinator
	locks  domain.LockManager
	logger *slog.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(coord *resolver.Coordinator, locks domain.LockManager, logger *slog.Logger) *ResolutionService {
	return &ResolutionService{
		coord:  coord,
		locks:  locks,
		logger: logger.With(slog.String("component", "resolution_service")),
	}
}

// Submit registers a new intent.
func (s *ResolutionService) Submit(ctx context.Context, id common.Hash, submitter common.Address, payload []byte) error {
	return s.coord.SubmitIntent(ctx, id, submitter, payload)
}

// Get returns the stored intent.
func (s *ResolutionService) Get(id common.Hash) (domain.Intent, error) {
	return s.coord.Intent(id)
}

// Reputation returns the solver's current score.
func (s *ResolutionService) Reputation(solver common.Address) int64 {
	return s.coord.Reputation(solver)
}

// Resolve runs one resolution attempt under a per-intent distributed lock.
// A concurrent attempt on the same intent from another replica gets
// ErrLockHeld instead of queueing.
func (s *ResolutionService) Resolve(ctx context.Context, id common.Hash, solver common.Address, data domain.ExecData) error {
	unlock, err := s.locks.Acquire(ctx, intentLockKey(id), resolveLockTTL)
	if err != nil {
		return fmt.Errorf("service: resolve %s: %w", id, err)
	}
	defer unlock()

	return s.coord.ResolveIntent(ctx, id, solver, data)
}

// BatchResolve applies the coordinator's all-or-nothing batch under locks on
// every named intent. If any lock is taken the whole batch is refused before
// the coordinator runs.
func (s *ResolutionService) BatchResolve(ctx context.Context, ids []common.Hash, solvers []common.Address) error {
	unlocks := make([]func(), 0, len(ids))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, id := range ids {
		unlock, err := s.locks.Acquire(ctx, intentLockKey(id), resolveLockTTL)
		if err != nil {
			release()
			return fmt.Errorf("service: batch lock %s: %w", id, err)
		}
		unlocks = append(unlocks, unlock)
	}
	defer release()

	return s.coord.BatchResolve(ctx, ids, solvers)
}

// Abandon finalizes a stuck intent as Failed. Admin only.
func (s *ResolutionService) Abandon(ctx context.Context, caller common.Address, id common.Hash) error {
	unlock, err := s.locks.Acquire(ctx, intentLockKey(id), resolveLockTTL)
	if err != nil {
		return fmt.Errorf("service: abandon %s: %w", id, err)
	}
	defer unlock()

	return s.coord.AbandonIntent(ctx, caller, id)
}

// AdjustReputation applies a manual reputation adjustment. Admin only.
func (s *ResolutionService) AdjustReputation(ctx context.Context, caller, solver common.Address, delta int64) (int64, error) {
	return s.coord.AdjustReputation(ctx, caller, solver, delta)
}

func intentLockKey(id common.Hash) string {
	return "intent:" + id.Hex()
}
