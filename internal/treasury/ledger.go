// Package treasury keeps the protocol's per-token balances and the set of
// withdrawers allowed to draw on them.
package treasury

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// Ledger is an in-memory per-token balance sheet with an authorized
// withdrawer set. Every operation is atomic under a single lock and
// withdrawals never exceed the recorded balance.
type Ledger struct {
	mu         sync.RWMutex
	admin      common.Address
	balances   map[common.Address]*uint256.Int
	authorized map[common.Address]bool
	sink       domain.EventSink
}

// NewLedger creates an empty Ledger administered by admin.
func NewLedger(admin common.Address, sink domain.EventSink) *Ledger {
	return &Ledger{
		admin:      admin,
		balances:   make(map[common.Address]*uint256.Int),
		authorized: make(map[common.Address]bool),
		sink:       sink,
	}
}

// Deposit credits the token balance. Deposits are unrestricted.
func (l *Ledger) Deposit(ctx context.Context, from, token common.Address, amount *uint256.Int) {
	l.mu.Lock()
	bal, ok := l.balances[token]
	if !ok {
		bal = new(uint256.Int)
		l.balances[token] = bal
	}
	bal.Add(bal, amount)
	l.mu.Unlock()

	l.sink.Emit(ctx, domain.NewEvent(domain.EventFundsDeposited, map[string]any{
		"from":   from.Hex(),
		"token":  token.Hex(),
		"amount": amount.String(),
	}))
}

// AuthorizeAccess adds a solver to the withdrawer set. Admin only.
func (l *Ledger) AuthorizeAccess(caller, solver common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.ErrUnauthorized
	}
	l.authorized[solver] = true
	return nil
}

// Withdraw debits the token balance and reports the transfer target in the
// emitted event. The caller must be in the withdrawer set and the amount
// must not exceed the recorded balance; on failure nothing mutates.
func (l *Ledger) Withdraw(ctx context.Context, caller, token common.Address, amount *uint256.Int, to common.Address) error {
	l.mu.Lock()
	if !l.authorized[caller] {
		l.mu.Unlock()
		return domain.ErrUnauthorized
	}
	bal := l.balances[token]
	if bal == nil || bal.Lt(amount) {
		l.mu.Unlock()
		return domain.ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	l.mu.Unlock()

	l.sink.Emit(ctx, domain.NewEvent(domain.EventFundsWithdrawn, map[string]any{
		"caller": caller.Hex(),
		"token":  token.Hex(),
		"amount": amount.String(),
		"to":     to.Hex(),
	}))
	return nil
}

// Balance returns a copy of the token's recorded balance.
func (l *Ledger) Balance(token common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[token]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Authorized reports whether the address is in the withdrawer set.
func (l *Ledger) Authorized(addr common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.authorized[addr]
}

// Snapshot captures the full ledger state for unit-of-work rollback.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{
		balances:   make(map[common.Address]*uint256.Int, len(l.balances)),
		authorized: make(map[common.Address]bool, len(l.authorized)),
	}
	for token, bal := range l.balances {
		snap.balances[token] = new(uint256.Int).Set(bal)
	}
	for addr, ok := range l.authorized {
		snap.authorized[addr] = ok
	}
	return snap
}

// Restore replaces the ledger state with a previously taken snapshot.
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[common.Address]*uint256.Int, len(snap.balances))
	for token, bal := range snap.balances {
		l.balances[token] = new(uint256.Int).Set(bal)
	}
	l.authorized = make(map[common.Address]bool, len(snap.authorized))
	for addr, ok := range snap.authorized {
		l.authorized[addr] = ok
	}
}

// Snapshot is an immutable copy of the ledger state.
type Snapshot struct {
	balances   map[common.Address]*uint256.Int
	authorized map[common.Address]bool
}
