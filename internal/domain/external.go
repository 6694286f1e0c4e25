package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BorrowCallback runs while the borrowed funds are available. Returning an
// error aborts the cycle; the provider must then leave no balance effects
// behind for the next failover attempt to observe.
type BorrowCallback func(ctx context.Context, funds *uint256.Int) error

// FlashloanProvider is a pluggable liquidity adapter. Borrow performs the
// full borrow -> callback -> repay cycle atomically.
type FlashloanProvider interface {
	Name() string
	Borrow(ctx context.Context, token common.Address, amount *uint256.Int, cb BorrowCallback) error
}

// PayloadExecutor is the dynamic-dispatch extension point for the opaque
// execution payload. Concrete variants live in the execution-adapter layer,
// outside the core.
type PayloadExecutor interface {
	Execute(ctx context.Context, payload, callbackData []byte) error
}

// Verifier consumes an externally produced proof and returns pass/fail. The
// core never inspects the proof itself.
type Verifier interface {
	Verify(ctx context.Context, proof []byte) (bool, error)
}
