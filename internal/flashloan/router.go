// Package flashloan routes funding requests across an ordered list of
// provider adapters with automatic failover.
package flashloan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/bitscale"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// Router attempts each provider's borrow -> callback -> repay cycle in order
// until one succeeds. A failing provider must leave no balance effects for
// the next attempt to observe; that contract belongs to the adapter.
type Router struct {
	minMagnitude uint
	sink         domain.EventSink
	logger       *slog.Logger
}

// NewRouter creates a Router. Amounts whose log-magnitude is below
// minMagnitude are rejected as dust before any provider is contacted.
func NewRouter(minMagnitude uint, sink domain.EventSink, logger *slog.Logger) *Router {
	return &Router{
		minMagnitude: minMagnitude,
		sink:         sink,
		logger:       logger.With(slog.String("component", "flashloan_router")),
	}
}

// ExecuteWithFailover draws amount of token from the first provider that
// completes a full cycle, running cb while the funds are held. It returns
// the name of the provider that served the loan.
func (r *Router) ExecuteWithFailover(
	ctx context.Context,
	providers []domain.FlashloanProvider,
	token common.Address,
	amount *uint256.Int,
	cb domain.BorrowCallback,
) (string, error) {
	if amount.IsZero() || bitscale.Msb(amount) < r.minMagnitude {
		return "", fmt.Errorf("flashloan: amount %s: %w", amount, domain.ErrDustAmount)
	}
	if len(providers) == 0 {
		return "", fmt.Errorf("flashloan: no providers configured: %w", domain.ErrFlashloanFailed)
	}

	var attempts []error
	for _, p := range providers {
		err := p.Borrow(ctx, token, amount, cb)
		if err == nil {
			r.sink.Emit(ctx, domain.NewEvent(domain.EventFlashloanExecuted, map[string]any{
				"provider": p.Name(),
				"token":    token.Hex(),
				"amount":   amount.String(),
				"success":  true,
			}))
			return p.Name(), nil
		}

		r.logger.WarnContext(ctx, "provider failed, trying next",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		attempts = append(attempts, fmt.Errorf("%s: %w", p.Name(), err))
	}

	r.sink.Emit(ctx, domain.NewEvent(domain.EventFlashloanExecuted, map[string]any{
		"provider": providers[len(providers)-1].Name(),
		"token":    token.Hex(),
		"amount":   amount.String(),
		"success":  false,
	}))
	return "", fmt.Errorf("flashloan: %w: %w", domain.ErrFlashloanFailed, errors.Join(attempts...))
}
