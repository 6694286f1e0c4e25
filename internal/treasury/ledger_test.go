package treasury

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

type captureSink struct {
	got []domain.Event
}

func (c *captureSink) Emit(_ context.Context, ev domain.Event) {
	c.got = append(c.got, ev)
}

var (
	admin  = common.HexToAddress("0xad")
	solver = common.HexToAddress("0x50")
	other  = common.HexToAddress("0x99")
	token  = common.HexToAddress("0x70")
)

func newLedger(t *testing.T) (*Ledger, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	return NewLedger(admin, sink), sink
}

func TestDepositAndBalance(t *testing.T) {
	ctx := context.Background()
	l, sink := newLedger(t)

	l.Deposit(ctx, other, token, uint256.NewInt(500))
	l.Deposit(ctx, other, token, uint256.NewInt(250))

	if got := l.Balance(token); !got.Eq(uint256.NewInt(750)) {
		t.Fatalf("balance = %s, want 750", got)
	}
	if len(sink.got) != 2 || sink.got[0].Type != domain.EventFundsDeposited {
		t.Fatalf("unexpected events: %v", sink.got)
	}
}

func TestAuthorizeAccessAdminOnly(t *testing.T) {
	l, _ := newLedger(t)

	if err := l.AuthorizeAccess(other, solver); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin authorize: err = %v, want ErrUnauthorized", err)
	}
	if err := l.AuthorizeAccess(admin, solver); err != nil {
		t.Fatalf("admin authorize failed: %v", err)
	}
	if !l.Authorized(solver) {
		t.Error("solver not in withdrawer set after authorize")
	}
}

func TestWithdrawBounds(t *testing.T) {
	ctx := context.Background()
	l, sink := newLedger(t)

	l.Deposit(ctx, other, token, uint256.NewInt(100))
	if err := l.AuthorizeAccess(admin, solver); err != nil {
		t.Fatal(err)
	}

	// Unauthorized caller.
	err := l.Withdraw(ctx, other, token, uint256.NewInt(10), other)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("unauthorized withdraw: err = %v", err)
	}

	// Overdraw.
	err = l.Withdraw(ctx, solver, token, uint256.NewInt(101), solver)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("overdraw: err = %v, want ErrInsufficientBalance", err)
	}
	if got := l.Balance(token); !got.Eq(uint256.NewInt(100)) {
		t.Fatalf("failed withdraw mutated balance: %s", got)
	}

	// Exact balance.
	if err := l.Withdraw(ctx, solver, token, uint256.NewInt(100), solver); err != nil {
		t.Fatalf("exact withdraw failed: %v", err)
	}
	if got := l.Balance(token); !got.IsZero() {
		t.Fatalf("balance after full withdraw = %s, want 0", got)
	}

	var withdrawn int
	for _, ev := range sink.got {
		if ev.Type == domain.EventFundsWithdrawn {
			withdrawn++
		}
	}
	if withdrawn != 1 {
		t.Errorf("emitted %d withdrawn events, want 1", withdrawn)
	}
}

// Cumulative successful withdrawals can never exceed cumulative deposits.
func TestWithdrawalsNeverExceedDeposits(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	if err := l.AuthorizeAccess(admin, solver); err != nil {
		t.Fatal(err)
	}

	deposited := new(uint256.Int)
	withdrawn := new(uint256.Int)

	steps := []struct {
		deposit  uint64
		withdraw uint64
	}{
		{100, 40},
		{0, 70},  // only 60 left; must fail
		{50, 60}, // 110 in, 40 out so far; succeeds
		{0, 80},  // 10 left; must fail
	}
	for _, st := range steps {
		if st.deposit > 0 {
			amt := uint256.NewInt(st.deposit)
			l.Deposit(ctx, other, token, amt)
			deposited.Add(deposited, amt)
		}
		if st.withdraw > 0 {
			amt := uint256.NewInt(st.withdraw)
			if err := l.Withdraw(ctx, solver, token, amt, solver); err == nil {
				withdrawn.Add(withdrawn, amt)
			}
		}
		if withdrawn.Gt(deposited) {
			t.Fatalf("withdrawn %s exceeds deposited %s", withdrawn, deposited)
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	l.Deposit(ctx, other, token, uint256.NewInt(100))
	snap := l.Snapshot()

	l.Deposit(ctx, other, token, uint256.NewInt(900))
	if err := l.AuthorizeAccess(admin, solver); err != nil {
		t.Fatal(err)
	}

	l.Restore(snap)
	if got := l.Balance(token); !got.Eq(uint256.NewInt(100)) {
		t.Fatalf("restored balance = %s, want 100", got)
	}
	if l.Authorized(solver) {
		t.Error("authorization survived restore")
	}
}
