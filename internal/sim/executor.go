package sim

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// Executor is a payload executor for simulate mode. It logs the dispatch
// and succeeds unless the payload is empty.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger.With(slog.String("component", "sim_executor"))}
}

// Execute implements domain.PayloadExecutor.
func (e *Executor) Execute(ctx context.Context, payload, callbackData []byte) error {
	if len(payload) == 0 {
		return errors.New("sim: empty payload")
	}
	e.logger.InfoContext(ctx, "payload executed",
		slog.Int("payload_bytes", len(payload)),
		slog.Int("callback_bytes", len(callbackData)),
	)
	return nil
}

// Verifier is a fixed-answer proof verifier for simulate mode and tests.
type Verifier struct {
	OK bool
}

// Verify implements domain.Verifier.
func (v Verifier) Verify(context.Context, []byte) (bool, error) {
	return v.OK, nil
}

var (
	_ domain.PayloadExecutor = (*Executor)(nil)
	_ domain.Verifier        = Verifier{}
)
