// Package resolver hosts the intent-resolution coordinator: the top-level
// entry point that registers intents, runs the gating checks, draws an
// optional flashloan, dispatches the opaque payload, and rewards the
// resolving solver. Every mutating path either runs to completion or rolls
// back entirely.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/bitscale"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/compliance"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/crypto"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/events"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/flashloan"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/reputation"
)

// Config carries the gating thresholds for a Coordinator.
type Config struct {
	// Admin may adjust reputation and abandon intents.
	Admin common.Address
	// RequiredFlags is the compliance bitmask every resolver must carry.
	RequiredFlags uint64
	// MinReputation is the score floor for resolving intents.
	MinReputation int64
	// MinEntropyBits rejects resolutions whose call-pattern hash has its
	// most significant bit below this index.
	MinEntropyBits uint
	// MinLoanMagnitude is the dust floor for flashloan draws.
	MinLoanMagnitude uint
	// RewardDelta is the raw reputation delta credited on a successful
	// resolution, before log scaling.
	RewardDelta int64
}

// Coordinator orchestrates intent resolution. It owns the intent table and
// the reputation store; the compliance registry, payload executor, optional
// verifier, and flashloan providers are injected collaborators.
type Coordinator struct {
	cfg        Config
	compliance *compliance.Registry
	executor   domain.PayloadExecutor
	verifier   domain.Verifier
	providers  []domain.FlashloanProvider
	sink       domain.EventSink
	logger     *slog.Logger

	reputation *reputation.Store
	router     *flashloan.Router
	buf        *events.Buffer

	// busy is the non-reentrancy guard across every mutating entry point.
	// A nested call from a payload or loan callback, or a concurrent call
	// from another goroutine, is rejected rather than blocked; this is
	// what keeps status transitions forward-only while a resolution holds
	// the flag.
	busy atomic.Bool

	mu      sync.Mutex
	intents map[common.Hash]*domain.Intent
}

// NewCoordinator wires a coordinator around the given collaborators. The
// verifier may be nil, in which case proofs are not checked. Reputation and
// flashloan events are staged through an internal buffer and only reach sink
// when the enclosing resolution commits.
func NewCoordinator(
	cfg Config,
	registry *compliance.Registry,
	executor domain.PayloadExecutor,
	verifier domain.Verifier,
	providers []domain.FlashloanProvider,
	sink domain.EventSink,
	logger *slog.Logger,
) *Coordinator {
	buf := events.NewBuffer()
	return &Coordinator{
		cfg:        cfg,
		compliance: registry,
		executor:   executor,
		verifier:   verifier,
		providers:  providers,
		sink:       sink,
		logger:     logger.With(slog.String("component", "resolver")),
		reputation: reputation.NewStore(buf),
		router:     flashloan.NewRouter(cfg.MinLoanMagnitude, buf, logger),
		buf:        buf,
		intents:    make(map[common.Hash]*domain.Intent),
	}
}

// SubmitIntent registers a new intent in the Submitted state. Intent ids are
// caller-chosen and append-only: any collision, including with a finalized
// intent, is rejected.
func (c *Coordinator) SubmitIntent(ctx context.Context, id common.Hash, submitter common.Address, payload []byte) error {
	if !c.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("resolver: intent %s: %w", id, domain.ErrReentrantCall)
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	if _, ok := c.intents[id]; ok {
		c.mu.Unlock()
		return fmt.Errorf("resolver: intent %s: %w", id, domain.ErrDuplicateIntent)
	}
	c.intents[id] = &domain.Intent{
		ID:          id,
		Submitter:   submitter,
		Payload:     payload,
		Status:      domain.IntentSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	c.mu.Unlock()

	c.sink.Emit(ctx, domain.NewEvent(domain.EventIntentSubmitted, map[string]any{
		"intent_id": id.Hex(),
		"submitter": submitter.Hex(),
	}))
	c.logger.Debug("intent submitted", slog.String("intent_id", id.Hex()))
	return nil
}

// Intent returns a copy of the stored intent.
func (c *Coordinator) Intent(id common.Hash) (domain.Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.intents[id]
	if !ok {
		return domain.Intent{}, fmt.Errorf("resolver: intent %s: %w", id, domain.ErrIntentNotFound)
	}
	return *in, nil
}

// Reputation returns the solver's current score.
func (c *Coordinator) Reputation(solver common.Address) int64 {
	return c.reputation.Get(solver)
}

// ResolveIntent runs one resolution attempt: status gate, compliance,
// reputation and entropy gates, optional proof verification, optional
// flashloan draw with the payload dispatched inside the loan window, then a
// log-scaled reputation reward. Any failure aborts the whole call with no
// state change; the intent stays Submitted and may be retried.
func (c *Coordinator) ResolveIntent(ctx context.Context, id common.Hash, solver common.Address, data domain.ExecData) error {
	if !c.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("resolver: intent %s: %w", id, domain.ErrReentrantCall)
	}
	defer c.busy.Store(false)

	repSnap := c.reputation.Snapshot()
	if err := c.resolve(ctx, id, solver, data); err != nil {
		c.reputation.Restore(repSnap)
		c.buf.Salvage(ctx, c.sink, keepFlashloanFailure)
		c.sink.Emit(ctx, domain.NewEvent(domain.EventIntentResolved, map[string]any{
			"intent_id": id.Hex(),
			"solver":    solver.Hex(),
			"success":   false,
			"error":     err.Error(),
		}))
		return err
	}

	c.buf.Commit(ctx, c.sink)
	return nil
}

// BatchResolve applies ResolveIntent pairwise over ids and solvers. The
// batch is all-or-nothing: a single failure rolls back every resolution in
// it, including the ones that had already succeeded.
func (c *Coordinator) BatchResolve(ctx context.Context, ids []common.Hash, solvers []common.Address) error {
	if len(ids) != len(solvers) {
		return fmt.Errorf("resolver: batch of %d ids against %d solvers", len(ids), len(solvers))
	}
	if !c.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("resolver: batch: %w", domain.ErrReentrantCall)
	}
	defer c.busy.Store(false)

	repSnap := c.reputation.Snapshot()
	intentSnap := c.snapshotIntents(ids)

	for i, id := range ids {
		if err := c.resolve(ctx, id, solvers[i], domain.ExecData{}); err != nil {
			c.reputation.Restore(repSnap)
			c.restoreIntents(intentSnap)
			c.buf.Salvage(ctx, c.sink, keepFlashloanFailure)
			c.sink.Emit(ctx, domain.NewEvent(domain.EventIntentResolved, map[string]any{
				"intent_id": id.Hex(),
				"solver":    solvers[i].Hex(),
				"success":   false,
				"error":     err.Error(),
			}))
			return fmt.Errorf("resolver: batch item %d (intent %s): %w", i, id, err)
		}
	}

	c.buf.Commit(ctx, c.sink)
	return nil
}

// keepFlashloanFailure picks the staged events that must survive a rollback:
// a failed flashloan attempt is an audit record of contacting external
// providers, not part of the unit of work's state.
func keepFlashloanFailure(ev domain.Event) bool {
	if ev.Type != domain.EventFlashloanExecuted {
		return false
	}
	success, ok := ev.Fields["success"].(bool)
	return ok && !success
}

// resolve performs a single resolution with the busy flag already held. On
// success the intent is finalized and the reward plus the IntentResolved
// event are staged in the buffer; the caller decides whether to commit or
// roll back.
func (c *Coordinator) resolve(ctx context.Context, id common.Hash, solver common.Address, data domain.ExecData) error {
	c.mu.Lock()
	in, ok := c.intents[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("resolver: intent %s: %w", id, domain.ErrIntentNotFound)
	}
	if in.Status != domain.IntentSubmitted {
		c.mu.Unlock()
		return fmt.Errorf("resolver: intent %s is %s: %w", id, in.Status, domain.ErrIntentFinalized)
	}
	payload := in.Payload
	c.mu.Unlock()

	if err := c.gate(ctx, id, solver, payload, data.Proof); err != nil {
		return err
	}

	if data.WantsLoan() {
		provider, err := c.router.ExecuteWithFailover(ctx, c.providers, data.LoanToken, data.LoanAmount,
			func(ctx context.Context, _ *uint256.Int) error {
				return c.executor.Execute(ctx, payload, data.CallbackData)
			})
		if err != nil {
			return fmt.Errorf("resolver: intent %s: %w", id, err)
		}
		c.logger.Debug("funded resolution executed",
			slog.String("intent_id", id.Hex()),
			slog.String("provider", provider))
	} else {
		if err := c.executor.Execute(ctx, payload, data.CallbackData); err != nil {
			return fmt.Errorf("resolver: intent %s: %w: %w", id, domain.ErrExecutionFailed, err)
		}
	}

	c.reputation.Update(ctx, solver, c.cfg.RewardDelta)

	c.mu.Lock()
	in.Status = domain.IntentResolved
	resolvedBy := solver
	in.Resolver = &resolvedBy
	c.mu.Unlock()

	c.buf.Emit(ctx, domain.NewEvent(domain.EventIntentResolved, map[string]any{
		"intent_id": id.Hex(),
		"solver":    solver.Hex(),
		"success":   true,
	}))
	return nil
}

// gate runs the pre-execution checks. All of them are read-only.
func (c *Coordinator) gate(ctx context.Context, id common.Hash, solver common.Address, payload, proof []byte) error {
	if !c.compliance.Check(solver, c.cfg.RequiredFlags) {
		return fmt.Errorf("resolver: solver %s fails compliance mask %#x: %w",
			solver, c.cfg.RequiredFlags, domain.ErrGatingFailure)
	}
	if !c.reputation.Gate(solver, c.cfg.MinReputation) {
		return fmt.Errorf("resolver: solver %s below reputation floor %d: %w",
			solver, c.cfg.MinReputation, domain.ErrGatingFailure)
	}
	if got := bitscale.Entropy(crypto.EntropyPreimage(id, solver, payload)); got < c.cfg.MinEntropyBits {
		return fmt.Errorf("resolver: call pattern entropy %d below %d: %w",
			got, c.cfg.MinEntropyBits, domain.ErrGatingFailure)
	}
	if c.verifier != nil {
		ok, err := c.verifier.Verify(ctx, proof)
		if err != nil {
			return fmt.Errorf("resolver: verify proof: %w: %w", domain.ErrGatingFailure, err)
		}
		if !ok {
			return fmt.Errorf("resolver: proof rejected: %w", domain.ErrGatingFailure)
		}
	}
	return nil
}

// AbandonIntent finalizes a stuck intent as Failed. Admin only; the
// transition is forward-only like every other status change.
func (c *Coordinator) AbandonIntent(ctx context.Context, caller common.Address, id common.Hash) error {
	if caller != c.cfg.Admin {
		return fmt.Errorf("resolver: abandon by %s: %w", caller, domain.ErrUnauthorized)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("resolver: intent %s: %w", id, domain.ErrReentrantCall)
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	in, ok := c.intents[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("resolver: intent %s: %w", id, domain.ErrIntentNotFound)
	}
	if in.Status != domain.IntentSubmitted {
		c.mu.Unlock()
		return fmt.Errorf("resolver: intent %s is %s: %w", id, in.Status, domain.ErrIntentFinalized)
	}
	in.Status = domain.IntentFailed
	c.mu.Unlock()

	c.sink.Emit(ctx, domain.NewEvent(domain.EventIntentResolved, map[string]any{
		"intent_id": id.Hex(),
		"success":   false,
		"status":    string(domain.IntentFailed),
	}))
	c.logger.Info("intent abandoned", slog.String("intent_id", id.Hex()))
	return nil
}

// AdjustReputation applies a manual, log-scaled reputation adjustment.
// This is the only slashing mechanism: execution failures never penalize
// automatically. Admin only.
func (c *Coordinator) AdjustReputation(ctx context.Context, caller, solver common.Address, delta int64) (int64, error) {
	if caller != c.cfg.Admin {
		return 0, fmt.Errorf("resolver: adjust by %s: %w", caller, domain.ErrUnauthorized)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("resolver: adjust: %w", domain.ErrReentrantCall)
	}
	defer c.busy.Store(false)

	score := c.reputation.Update(ctx, solver, delta)
	c.buf.Commit(ctx, c.sink)
	return score, nil
}

// snapshotIntents copies the current state of the named intents. Missing ids
// are skipped; resolve reports them itself.
func (c *Coordinator) snapshotIntents(ids []common.Hash) map[common.Hash]domain.Intent {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := make(map[common.Hash]domain.Intent, len(ids))
	for _, id := range ids {
		if in, ok := c.intents[id]; ok {
			snap[id] = *in
		}
	}
	return snap
}

func (c *Coordinator) restoreIntents(snap map[common.Hash]domain.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, was := range snap {
		if in, ok := c.intents[id]; ok {
			in.Status = was.Status
			in.Resolver = was.Resolver
		}
	}
}
