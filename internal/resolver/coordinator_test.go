package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/compliance"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/sim"
)

const flagKYC uint64 = 1 << 0

var (
	admin   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	solverA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	solverB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	token   = common.HexToAddress("0x7000000000000000000000000000000000000000")

	intent1 = common.HexToHash("0x01")
	intent2 = common.HexToHash("0x02")
)

type captureSink struct {
	got []domain.Event
}

func (c *captureSink) Emit(_ context.Context, ev domain.Event) {
	c.got = append(c.got, ev)
}

func (c *captureSink) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range c.got {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type execFunc func(ctx context.Context, payload, callbackData []byte) error

func (f execFunc) Execute(ctx context.Context, payload, callbackData []byte) error {
	return f(ctx, payload, callbackData)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Admin:            admin,
		RequiredFlags:    flagKYC,
		MinReputation:    0,
		MinEntropyBits:   0,
		MinLoanMagnitude: 8,
		RewardDelta:      1 << 16,
	}
}

// newTestCoordinator builds a coordinator with solverA already compliant and
// one submitted intent.
func newTestCoordinator(t *testing.T, cfg Config, exec domain.PayloadExecutor, providers ...domain.FlashloanProvider) (*Coordinator, *captureSink) {
	t.Helper()
	ctx := context.Background()
	sink := &captureSink{}
	reg := compliance.NewRegistry(sink)
	reg.SetFlags(ctx, solverA, flagKYC)
	c := NewCoordinator(cfg, reg, exec, nil, providers, sink, discardLogger())
	if err := c.SubmitIntent(ctx, intent1, solverB, []byte("swap")); err != nil {
		t.Fatal(err)
	}
	return c, sink
}

func okExec(context.Context, []byte, []byte) error { return nil }

func TestSubmitIntentRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, testConfig(), execFunc(okExec))

	err := c.SubmitIntent(ctx, intent1, solverA, []byte("other"))
	if !errors.Is(err, domain.ErrDuplicateIntent) {
		t.Fatalf("err = %v, want ErrDuplicateIntent", err)
	}

	// Finalized ids stay taken: the table is append-only.
	if err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{}); err != nil {
		t.Fatal(err)
	}
	if err := c.SubmitIntent(ctx, intent1, solverA, []byte("again")); !errors.Is(err, domain.ErrDuplicateIntent) {
		t.Fatalf("resubmit finalized id: err = %v, want ErrDuplicateIntent", err)
	}
}

func TestResolveIntentSuccess(t *testing.T) {
	ctx := context.Background()
	c, sink := newTestCoordinator(t, testConfig(), execFunc(okExec))

	if err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{}); err != nil {
		t.Fatal(err)
	}

	in, err := c.Intent(intent1)
	if err != nil {
		t.Fatal(err)
	}
	if in.Status != domain.IntentResolved {
		t.Errorf("status = %s, want resolved", in.Status)
	}
	if in.Resolver == nil || *in.Resolver != solverA {
		t.Error("resolver not recorded")
	}

	// Reward is log-scaled: 65536 has msb 16, 65536*16/256 = 4096.
	if got := c.Reputation(solverA); got != 4096 {
		t.Errorf("reputation = %d, want 4096", got)
	}

	resolved := sink.ofType(domain.EventIntentResolved)
	if len(resolved) != 1 {
		t.Fatalf("got %d intent_resolved events, want 1", len(resolved))
	}
	if resolved[0].Fields["success"] != true {
		t.Error("success field not true")
	}
	if len(sink.ofType(domain.EventReputationUpdated)) != 1 {
		t.Error("reward event missing")
	}
}

func TestResolveIntentStatusGates(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, testConfig(), execFunc(okExec))

	if err := c.ResolveIntent(ctx, common.HexToHash("0xff"), solverA, domain.ExecData{}); !errors.Is(err, domain.ErrIntentNotFound) {
		t.Fatalf("unknown id: err = %v", err)
	}

	if err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{}); err != nil {
		t.Fatal(err)
	}
	if err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{}); !errors.Is(err, domain.ErrIntentFinalized) {
		t.Fatalf("resolved id: err = %v", err)
	}
}

func TestGatingFailuresLeaveNoTrace(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		cfg    Config
		solver common.Address
	}{
		{"non-compliant solver", testConfig(), solverB},
		{"reputation floor", func() Config {
			cfg := testConfig()
			cfg.MinReputation = 1
			return cfg
		}(), solverA},
		{"entropy floor", func() Config {
			cfg := testConfig()
			// No 256-bit hash can clear this, so the gate always fires.
			cfg.MinEntropyBits = 256
			return cfg
		}(), solverA},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			executed := false
			c, sink := newTestCoordinator(t, tc.cfg, execFunc(func(context.Context, []byte, []byte) error {
				executed = true
				return nil
			}))

			err := c.ResolveIntent(ctx, intent1, tc.solver, domain.ExecData{})
			if !errors.Is(err, domain.ErrGatingFailure) {
				t.Fatalf("err = %v, want ErrGatingFailure", err)
			}
			if executed {
				t.Error("payload ran despite failed gate")
			}
			in, _ := c.Intent(intent1)
			if in.Status != domain.IntentSubmitted {
				t.Errorf("status = %s, want submitted", in.Status)
			}
			if len(sink.ofType(domain.EventReputationUpdated)) != 0 {
				t.Error("reputation event escaped a failed gate")
			}
		})
	}
}

func TestVerifierGate(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	reg := compliance.NewRegistry(sink)
	reg.SetFlags(ctx, solverA, flagKYC)

	c := NewCoordinator(testConfig(), reg, execFunc(okExec), sim.Verifier{OK: false}, nil, sink, discardLogger())
	if err := c.SubmitIntent(ctx, intent1, solverB, []byte("swap")); err != nil {
		t.Fatal(err)
	}

	err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{Proof: []byte("bogus")})
	if !errors.Is(err, domain.ErrGatingFailure) {
		t.Fatalf("rejected proof: err = %v, want ErrGatingFailure", err)
	}
}

func TestExecutionFailureLeavesIntentRetryable(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	c, sink := newTestCoordinator(t, testConfig(), execFunc(func(context.Context, []byte, []byte) error {
		attempts++
		if attempts == 1 {
			return errors.New("slippage exceeded")
		}
		return nil
	}))

	err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{})
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
	in, _ := c.Intent(intent1)
	if in.Status != domain.IntentSubmitted {
		t.Fatalf("status = %s, want submitted for retry", in.Status)
	}
	// No automatic penalty on failure.
	if got := c.Reputation(solverA); got != 0 {
		t.Errorf("reputation = %d after failed attempt, want 0", got)
	}
	failed := sink.ofType(domain.EventIntentResolved)
	if len(failed) != 1 || failed[0].Fields["success"] != false {
		t.Fatalf("expected one failed intent_resolved event, got %v", failed)
	}

	// Retry with the same parameters succeeds.
	if err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{}); err != nil {
		t.Fatal(err)
	}
	if got := c.Reputation(solverA); got != 4096 {
		t.Errorf("reputation = %d after retry, want 4096", got)
	}
}

func TestFundedResolution(t *testing.T) {
	ctx := context.Background()
	pool := sim.NewLoanPool("sim-a", 0)
	pool.Fund(token, uint256.NewInt(1<<30))

	c, sink := newTestCoordinator(t, testConfig(), execFunc(okExec), pool)

	err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{
		LoanToken:  token,
		LoanAmount: uint256.NewInt(1 << 20),
	})
	if err != nil {
		t.Fatal(err)
	}
	if pool.Cycles() != 1 {
		t.Errorf("pool cycles = %d, want 1", pool.Cycles())
	}
	if len(sink.ofType(domain.EventFlashloanExecuted)) != 1 {
		t.Error("flashloan event missing")
	}
}

func TestFundedResolutionDustRejected(t *testing.T) {
	ctx := context.Background()
	pool := sim.NewLoanPool("sim-a", 0)
	pool.Fund(token, uint256.NewInt(1<<30))
	c, _ := newTestCoordinator(t, testConfig(), execFunc(okExec), pool)

	err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{
		LoanToken:  token,
		LoanAmount: uint256.NewInt(3), // msb 1, below the floor of 8
	})
	if !errors.Is(err, domain.ErrDustAmount) {
		t.Fatalf("err = %v, want ErrDustAmount", err)
	}
	if pool.Cycles() != 0 {
		t.Error("provider contacted for dust amount")
	}
	in, _ := c.Intent(intent1)
	if in.Status != domain.IntentSubmitted {
		t.Error("intent finalized by failed loan")
	}
}

func TestReentrantResolutionRejected(t *testing.T) {
	ctx := context.Background()

	var c *Coordinator
	var innerErr error
	exec := execFunc(func(ctx context.Context, _, _ []byte) error {
		// A hostile payload trying to re-enter mid-resolution.
		innerErr = c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{})
		return innerErr
	})
	c, _ = newTestCoordinator(t, testConfig(), exec)

	err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{})
	if !errors.Is(innerErr, domain.ErrReentrantCall) {
		t.Fatalf("inner err = %v, want ErrReentrantCall", innerErr)
	}
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Fatalf("outer err = %v, want ErrExecutionFailed", err)
	}
	in, _ := c.Intent(intent1)
	if in.Status != domain.IntentSubmitted {
		t.Error("reentrant attempt mutated the intent")
	}
	if got := c.Reputation(solverA); got != 0 {
		t.Errorf("reputation = %d, want 0", got)
	}
}

func TestReentrantAbandonRejected(t *testing.T) {
	ctx := context.Background()

	var c *Coordinator
	var innerErr error
	exec := execFunc(func(ctx context.Context, _, _ []byte) error {
		// A payload holding admin credentials must not be able to flip
		// the intent to failed underneath its own resolution.
		innerErr = c.AbandonIntent(ctx, admin, intent1)
		return innerErr
	})
	c, _ = newTestCoordinator(t, testConfig(), exec)

	err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{})
	if !errors.Is(innerErr, domain.ErrReentrantCall) {
		t.Fatalf("inner abandon err = %v, want ErrReentrantCall", innerErr)
	}
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Fatalf("outer err = %v, want ErrExecutionFailed", err)
	}
	in, _ := c.Intent(intent1)
	if in.Status != domain.IntentSubmitted {
		t.Fatalf("status = %s, want submitted", in.Status)
	}
}

func TestReentrantSubmitRejected(t *testing.T) {
	ctx := context.Background()

	var c *Coordinator
	var innerErr error
	exec := execFunc(func(ctx context.Context, _, _ []byte) error {
		innerErr = c.SubmitIntent(ctx, intent2, solverB, []byte("nested"))
		return innerErr
	})
	c, _ = newTestCoordinator(t, testConfig(), exec)

	if err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{}); !errors.Is(err, domain.ErrExecutionFailed) {
		t.Fatalf("outer err = %v, want ErrExecutionFailed", err)
	}
	if !errors.Is(innerErr, domain.ErrReentrantCall) {
		t.Fatalf("inner submit err = %v, want ErrReentrantCall", innerErr)
	}
	if _, err := c.Intent(intent2); !errors.Is(err, domain.ErrIntentNotFound) {
		t.Errorf("nested submit registered an intent: %v", err)
	}
}

func TestFailedFlashloanAttemptIsRecorded(t *testing.T) {
	ctx := context.Background()
	pool := sim.NewLoanPool("sim-a", 0) // no liquidity: every draw fails

	executed := false
	c, sink := newTestCoordinator(t, testConfig(), execFunc(func(context.Context, []byte, []byte) error {
		executed = true
		return nil
	}), pool)

	err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{
		LoanToken:  token,
		LoanAmount: uint256.NewInt(1 << 20),
	})
	if !errors.Is(err, domain.ErrFlashloanFailed) {
		t.Fatalf("err = %v, want ErrFlashloanFailed", err)
	}
	if executed {
		t.Error("payload ran without a loan")
	}

	// The rollback drops staged state events but the failed-attempt audit
	// record still reaches the sink.
	loans := sink.ofType(domain.EventFlashloanExecuted)
	if len(loans) != 1 {
		t.Fatalf("got %d flashloan events, want 1", len(loans))
	}
	if loans[0].Fields["success"] != false {
		t.Errorf("flashloan event success = %v, want false", loans[0].Fields["success"])
	}
	resolved := sink.ofType(domain.EventIntentResolved)
	if len(resolved) != 1 || resolved[0].Fields["success"] != false {
		t.Fatalf("expected one failed intent_resolved event, got %v", resolved)
	}
	if len(sink.ofType(domain.EventReputationUpdated)) != 0 {
		t.Error("reputation event escaped the rollback")
	}
	in, _ := c.Intent(intent1)
	if in.Status != domain.IntentSubmitted {
		t.Errorf("status = %s, want submitted for retry", in.Status)
	}
}

func TestBatchResolveAllOrNothing(t *testing.T) {
	ctx := context.Background()
	c, sink := newTestCoordinator(t, testConfig(), execFunc(okExec))
	if err := c.SubmitIntent(ctx, intent2, solverB, []byte("swap-2")); err != nil {
		t.Fatal(err)
	}

	// First item would succeed; second solver is non-compliant.
	err := c.BatchResolve(ctx, []common.Hash{intent1, intent2}, []common.Address{solverA, solverB})
	if !errors.Is(err, domain.ErrGatingFailure) {
		t.Fatalf("err = %v, want ErrGatingFailure", err)
	}

	for _, id := range []common.Hash{intent1, intent2} {
		in, getErr := c.Intent(id)
		if getErr != nil {
			t.Fatal(getErr)
		}
		if in.Status != domain.IntentSubmitted {
			t.Errorf("intent %s status = %s, want submitted", id, in.Status)
		}
	}
	// solverA's reward from the first item must have unwound.
	if got := c.Reputation(solverA); got != 0 {
		t.Errorf("reputation = %d, want 0 after rollback", got)
	}
	if got := sink.ofType(domain.EventReputationUpdated); len(got) != 0 {
		t.Errorf("%d reputation events escaped the aborted batch", len(got))
	}

	// Fix compliance and the same batch goes through.
	reg := c.compliance
	reg.SetFlags(ctx, solverB, flagKYC)
	if err := c.BatchResolve(ctx, []common.Hash{intent1, intent2}, []common.Address{solverA, solverB}); err != nil {
		t.Fatal(err)
	}
	if got := len(sink.ofType(domain.EventIntentResolved)); got != 3 { // 1 failed + 2 succeeded
		t.Errorf("intent_resolved events = %d, want 3", got)
	}
}

func TestAbandonIntent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, testConfig(), execFunc(okExec))

	if err := c.AbandonIntent(ctx, solverA, intent1); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin abandon: err = %v", err)
	}
	if err := c.AbandonIntent(ctx, admin, intent1); err != nil {
		t.Fatal(err)
	}
	in, _ := c.Intent(intent1)
	if in.Status != domain.IntentFailed {
		t.Fatalf("status = %s, want failed", in.Status)
	}

	if err := c.ResolveIntent(ctx, intent1, solverA, domain.ExecData{}); !errors.Is(err, domain.ErrIntentFinalized) {
		t.Fatalf("resolve abandoned intent: err = %v", err)
	}
	if err := c.AbandonIntent(ctx, admin, intent1); !errors.Is(err, domain.ErrIntentFinalized) {
		t.Fatalf("double abandon: err = %v", err)
	}
}

func TestAdjustReputation(t *testing.T) {
	ctx := context.Background()
	c, sink := newTestCoordinator(t, testConfig(), execFunc(okExec))

	if _, err := c.AdjustReputation(ctx, solverA, solverA, 100); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin adjust: err = %v", err)
	}

	score, err := c.AdjustReputation(ctx, admin, solverA, 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	if score != 4096 {
		t.Fatalf("score = %d, want 4096", score)
	}

	// Manual slash, saturating at zero.
	score, err = c.AdjustReputation(ctx, admin, solverA, -(1 << 20))
	if err != nil {
		t.Fatal(err)
	}
	if score != 0 {
		t.Fatalf("score after slash = %d, want 0", score)
	}
	if got := len(sink.ofType(domain.EventReputationUpdated)); got != 2 {
		t.Errorf("reputation events = %d, want 2", got)
	}
}
