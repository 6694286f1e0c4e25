// Package reputation maintains per-solver scores. Adjustments pass through
// the shared logarithmic compression so no single event dominates a score,
// and scores saturate at zero instead of going negative.
package reputation

import (
	"context"
	"maps"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/bitscale"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// Store is an in-memory per-solver score table.
type Store struct {
	mu     sync.RWMutex
	scores map[common.Address]int64
	sink   domain.EventSink
}

// NewStore creates an empty Store emitting to sink.
func NewStore(sink domain.EventSink) *Store {
	return &Store{
		scores: make(map[common.Address]int64),
		sink:   sink,
	}
}

// Update applies a log-scaled adjustment to the solver's score, clamping
// the result at zero, and emits ReputationUpdated with the raw delta and
// the new score.
func (s *Store) Update(ctx context.Context, solver common.Address, delta int64) int64 {
	scaled := bitscale.ScaleDelta(delta)

	s.mu.Lock()
	score := s.scores[solver] + scaled
	if score < 0 {
		score = 0
	}
	s.scores[solver] = score
	s.mu.Unlock()

	s.sink.Emit(ctx, domain.NewEvent(domain.EventReputationUpdated, map[string]any{
		"solver":    solver.Hex(),
		"delta":     delta,
		"new_score": score,
	}))
	return score
}

// Get returns the solver's current score.
func (s *Store) Get(solver common.Address) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores[solver]
}

// Gate reports whether the solver's score meets the minimum. Callers must
// check this before any privileged action.
func (s *Store) Gate(solver common.Address, minScore int64) bool {
	return s.Get(solver) >= minScore
}

// Snapshot copies the score table for unit-of-work rollback.
func (s *Store) Snapshot() map[common.Address]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.scores)
}

// Restore replaces the score table with a previously taken snapshot.
func (s *Store) Restore(snap map[common.Address]int64) {
	s.mu.Lock()
	s.scores = maps.Clone(snap)
	s.mu.Unlock()
}
