// Package compliance tracks per-solver attribute bitmasks (KYC tier,
// jurisdiction clearance, sanction status, ...) used to gate resolution.
package compliance

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// Registry is an in-memory per-solver flag registry. All operations are
// atomic under a single lock.
type Registry struct {
	mu    sync.RWMutex
	flags map[common.Address]uint64
	sink  domain.EventSink
}

// NewRegistry creates an empty Registry emitting to sink.
func NewRegistry(sink domain.EventSink) *Registry {
	return &Registry{
		flags: make(map[common.Address]uint64),
		sink:  sink,
	}
}

// SetFlags replaces a solver's attribute mask and emits ComplianceChanged.
func (r *Registry) SetFlags(ctx context.Context, solver common.Address, mask uint64) {
	r.mu.Lock()
	r.flags[solver] = mask
	r.mu.Unlock()

	r.sink.Emit(ctx, domain.NewEvent(domain.EventComplianceChanged, map[string]any{
		"solver": solver.Hex(),
		"mask":   mask,
	}))
}

// Flags returns the solver's current attribute mask.
func (r *Registry) Flags(solver common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[solver]
}

// Check reports whether the solver carries every attribute in required.
func (r *Registry) Check(solver common.Address, required uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[solver]&required == required
}
