// Package sim provides in-memory stand-ins for the external collaborators
// the core consumes through interfaces: flashloan liquidity pools, a payload
// executor, and a verifier. They back the simulate mode and the test suite.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// LoanPool is an in-memory flashloan provider. A borrow cycle is strictly
// atomic: if the callback fails, the pool's balances are exactly as they
// were before the attempt.
type LoanPool struct {
	name   string
	feeBps uint64

	mu        sync.Mutex
	liquidity map[common.Address]*uint256.Int
	cycles    int
}

// NewLoanPool creates a pool charging feeBps per loan.
func NewLoanPool(name string, feeBps uint64) *LoanPool {
	return &LoanPool{
		name:      name,
		feeBps:    feeBps,
		liquidity: make(map[common.Address]*uint256.Int),
	}
}

// Name implements domain.FlashloanProvider.
func (p *LoanPool) Name() string { return p.name }

// Fund seeds the pool with liquidity for a token.
func (p *LoanPool) Fund(token common.Address, amount *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bal, ok := p.liquidity[token]
	if !ok {
		bal = new(uint256.Int)
		p.liquidity[token] = bal
	}
	bal.Add(bal, amount)
}

// Borrow implements domain.FlashloanProvider. The loan is debited, the
// callback runs with the funds, and repayment of principal plus fee is
// credited back in one atomic cycle.
func (p *LoanPool) Borrow(ctx context.Context, token common.Address, amount *uint256.Int, cb domain.BorrowCallback) error {
	p.mu.Lock()
	bal := p.liquidity[token]
	if bal == nil || bal.Lt(amount) {
		p.mu.Unlock()
		return fmt.Errorf("pool %s: insufficient liquidity for %s", p.name, amount)
	}
	bal.Sub(bal, amount)
	p.mu.Unlock()

	if err := cb(ctx, new(uint256.Int).Set(amount)); err != nil {
		// Failed cycle: restore the principal, keep no fee.
		p.mu.Lock()
		p.liquidity[token].Add(p.liquidity[token], amount)
		p.mu.Unlock()
		return fmt.Errorf("pool %s: callback: %w", p.name, err)
	}

	fee := new(uint256.Int).Mul(amount, uint256.NewInt(p.feeBps))
	fee.Div(fee, uint256.NewInt(10_000))

	p.mu.Lock()
	p.liquidity[token].Add(p.liquidity[token], amount)
	p.liquidity[token].Add(p.liquidity[token], fee)
	p.cycles++
	p.mu.Unlock()
	return nil
}

// Liquidity returns a copy of the pool's balance for a token.
func (p *LoanPool) Liquidity(token common.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bal, ok := p.liquidity[token]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Cycles reports how many complete borrow/repay cycles the pool served.
func (p *LoanPool) Cycles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

var _ domain.FlashloanProvider = (*LoanPool)(nil)
