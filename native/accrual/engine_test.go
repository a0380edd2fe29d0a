package accrual_test

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "vedex/core/errors"
	"vedex/core/state"
	"vedex/native/accrual"
	"vedex/native/token"
	"vedex/storage"
)

const week = uint64(7 * 24 * 60 * 60)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type mockLedger struct {
	balances map[string]*big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[string]*big.Int)}
}

func (m *mockLedger) TotalSupply() (*big.Int, error) {
	total := new(big.Int)
	for _, b := range m.balances {
		total.Add(total, b)
	}
	return total, nil
}

func (m *mockLedger) BalanceOf(account string) (*big.Int, error) {
	if b, ok := m.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *mockLedger) set(account string, amount *big.Int) { m.balances[account] = amount }

type fixture struct {
	engine  *accrual.Engine
	tokens  *token.Ledger
	ledger  *mockLedger
	funder  [20]byte
	custody [20]byte
	now     int64
}

func newFixture(t *testing.T, cfg accrual.Config) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	st := state.NewManager(db)
	tokens := token.NewLedger(st)
	authority := [20]byte{0xEE}
	f := &fixture{tokens: tokens, ledger: newMockLedger(), funder: [20]byte{0xF0}, custody: [20]byte{0xC0}, now: 1_700_000_000}
	for _, sym := range []string{"RWD", "ALT"} {
		if err := tokens.Register(sym, 18, authority); err != nil {
			t.Fatalf("register: %v", err)
		}
		supply := new(big.Int).Mul(unit, big.NewInt(1_000_000))
		if err := tokens.Mint(authority, sym, f.funder, supply); err != nil {
			t.Fatalf("mint: %v", err)
		}
		if err := tokens.Approve(sym, f.funder, f.custody, supply); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	cfg.Namespace = "test"
	cfg.Custody = f.custody
	f.engine = accrual.New(st, tokens, f.ledger, cfg)
	f.engine.SetNowFunc(func() int64 { return f.now })
	return f
}

func units(n int64) *big.Int { return new(big.Int).Mul(unit, big.NewInt(n)) }

// deposit mirrors the mandatory ordering of a staking wrapper.
func (f *fixture) deposit(t *testing.T, account string, amount *big.Int) {
	t.Helper()
	if err := f.engine.UpdateRewardState(account); err != nil {
		t.Fatalf("update before deposit: %v", err)
	}
	bal, _ := f.ledger.BalanceOf(account)
	f.ledger.set(account, bal.Add(bal, amount))
}

func (f *fixture) claim(t *testing.T, account string, to [20]byte) *big.Int {
	t.Helper()
	paid, err := f.engine.GetReward(account, to, []string{"RWD"})
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if v, ok := paid["RWD"]; ok {
		return v
	}
	return new(big.Int)
}

func withinTolerance(got, want *big.Int, tolerance uint64) bool {
	diff := new(big.Int).Sub(want, got)
	return diff.Sign() >= 0 && diff.Cmp(new(big.Int).SetUint64(tolerance)) <= 0
}

func TestSingleStakerReceivesFullReward(t *testing.T) {
	f := newFixture(t, accrual.Config{})
	f.deposit(t, "alice", units(5))
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(1000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	f.now += int64(week)
	got := f.claim(t, "alice", [20]byte{0x01})
	if !withinTolerance(got, units(1000), week) {
		t.Fatalf("expected ~1000e18, got %s", got)
	}
	again := f.claim(t, "alice", [20]byte{0x01})
	if again.Sign() != 0 {
		t.Fatalf("second claim should be a no-op, got %s", again)
	}
}

func TestTwoStakersSplitEvenly(t *testing.T) {
	f := newFixture(t, accrual.Config{})
	f.deposit(t, "alice", units(3))
	f.deposit(t, "bob", units(3))
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(1000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	f.now += int64(week)
	a := f.claim(t, "alice", [20]byte{0x01})
	b := f.claim(t, "bob", [20]byte{0x02})
	if a.Cmp(b) != 0 {
		t.Fatalf("expected equal split, got %s and %s", a, b)
	}
	if !withinTolerance(a, units(500), week) {
		t.Fatalf("expected ~500e18 each, got %s", a)
	}
}

func TestLateDepositOnlyEarnsFromDeposit(t *testing.T) {
	f := newFixture(t, accrual.Config{})
	f.deposit(t, "alice", units(1))
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(700)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	f.now += int64(week / 2)
	f.deposit(t, "bob", units(1))
	earned, _ := f.engine.Earned("RWD", "bob")
	if earned.Sign() != 0 {
		t.Fatalf("bob earned %s before any time passed", earned)
	}
	f.now += int64(week / 2)
	a := f.claim(t, "alice", [20]byte{0x01})
	b := f.claim(t, "bob", [20]byte{0x02})
	if !withinTolerance(a, units(525), week) || !withinTolerance(b, units(175), week) {
		t.Fatalf("unexpected split alice=%s bob=%s", a, b)
	}
}

func TestZeroSupplyDefersRewards(t *testing.T) {
	f := newFixture(t, accrual.Config{})
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(1000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	start, _ := f.engine.Reward("RWD")
	f.now += 3 * 24 * 60 * 60
	f.deposit(t, "alice", units(1))
	frozen, _ := f.engine.Reward("RWD")
	if frozen.PeriodFinish != start.PeriodFinish+3*24*60*60 {
		t.Fatalf("expected period end pushed back, %d -> %d", start.PeriodFinish, frozen.PeriodFinish)
	}
	left, _ := f.engine.Left("RWD")
	if left.Cmp(new(big.Int).Mul(start.Rate, new(big.Int).SetUint64(week))) != 0 {
		t.Fatalf("remaining reward changed while supply was zero: %s", left)
	}
	f.now = int64(frozen.PeriodFinish)
	got := f.claim(t, "alice", [20]byte{0x01})
	if !withinTolerance(got, units(1000), week) {
		t.Fatalf("expected deferred rewards to be paid in full, got %s", got)
	}
}

func TestLeftMatchesNotifyWhileFrozen(t *testing.T) {
	f := newFixture(t, accrual.Config{})
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(1000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	f.now += int64(week)
	left, err := f.engine.Left("RWD")
	if err != nil {
		t.Fatalf("left: %v", err)
	}
	if !withinTolerance(left, units(1000), week) {
		t.Fatalf("expected frozen remainder near 1000, got %s", left)
	}
	stored, _ := f.engine.Reward("RWD")
	if stored.PeriodFinish > uint64(f.now) {
		t.Fatalf("left must not persist the frozen span")
	}
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", left); !errors.Is(err, coreerrors.ErrRateOverflow) {
		t.Fatalf("expected top-up equal to left to fail, got %v", err)
	}
	more := new(big.Int).Add(left, units(1))
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", more); err != nil {
		t.Fatalf("top-up above left: %v", err)
	}
}

func TestNotifyTopUpRules(t *testing.T) {
	f := newFixture(t, accrual.Config{})
	f.deposit(t, "alice", units(1))
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", big.NewInt(100)); !errors.Is(err, coreerrors.ErrRateOverflow) {
		t.Fatalf("expected zero-rate rejection, got %v", err)
	}
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(100)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	rate, _ := f.engine.RewardRate("RWD")
	f.now += int64(week / 2)
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(10)); !errors.Is(err, coreerrors.ErrRateOverflow) {
		t.Fatalf("expected top-up below remainder to fail, got %v", err)
	}
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(100)); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	folded, _ := f.engine.RewardRate("RWD")
	if folded.Cmp(rate) <= 0 {
		t.Fatalf("expected folded rate above %s, got %s", rate, folded)
	}
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", big.NewInt(0)); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestStakeTokenCannotBeReward(t *testing.T) {
	f := newFixture(t, accrual.Config{StakeToken: "rwd"})
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(1)); !errors.Is(err, coreerrors.ErrInvalidRewardToken) {
		t.Fatalf("expected invalid reward token, got %v", err)
	}
}

func TestCatchUpRequiresBatchAdvance(t *testing.T) {
	f := newFixture(t, accrual.Config{Granularity: 3600, MaxSteps: 10})
	f.deposit(t, "alice", units(1))
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(168)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	f.now += int64(week)
	if err := f.engine.UpdateRewardState("alice"); !errors.Is(err, coreerrors.ErrCatchUpRequired) {
		t.Fatalf("expected catch-up error, got %v", err)
	}
	projected, _ := f.engine.Earned("RWD", "alice")

	var cursor *accrual.Cursor
	for i := 0; i < 100; i++ {
		c, err := f.engine.BatchAdvance("RWD", 25)
		if err != nil {
			t.Fatalf("batch advance: %v", err)
		}
		if c.Steps > 25 {
			t.Fatalf("batch advance exceeded step bound: %d", c.Steps)
		}
		cursor = c
		if c.Done {
			break
		}
	}
	if cursor == nil || !cursor.Done {
		t.Fatalf("accumulator never caught up")
	}
	got := f.claim(t, "alice", [20]byte{0x01})
	if got.Cmp(projected) != 0 {
		t.Fatalf("claimed %s differs from projection %s", got, projected)
	}
	if !withinTolerance(got, units(168), week) {
		t.Fatalf("expected ~168e18, got %s", got)
	}

	reward, _ := f.engine.Reward("RWD")
	mid, err := f.engine.RewardPerTokenAt("RWD", reward.PeriodFinish-week/2)
	if err != nil {
		t.Fatalf("reward per token at: %v", err)
	}
	if mid.Sign() <= 0 || mid.Cmp(reward.RewardPerTokenStored) >= 0 {
		t.Fatalf("historical accumulator %s not between 0 and %s", mid, reward.RewardPerTokenStored)
	}
}

func TestRewardTokenLimit(t *testing.T) {
	f := newFixture(t, accrual.Config{})
	authority := [20]byte{0xEE}
	for i := 0; i < accrual.MaxRewardTokens; i++ {
		sym := "T" + string(rune('A'+i))
		if err := f.tokens.Register(sym, 18, authority); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := f.tokens.Mint(authority, sym, f.funder, units(10)); err != nil {
			t.Fatalf("mint: %v", err)
		}
		if err := f.tokens.Approve(sym, f.funder, f.custody, units(10)); err != nil {
			t.Fatalf("approve: %v", err)
		}
		if err := f.engine.NotifyRewardAmount(f.funder, sym, units(1)); err != nil {
			t.Fatalf("notify %s: %v", sym, err)
		}
	}
	if err := f.engine.NotifyRewardAmount(f.funder, "RWD", units(1)); !errors.Is(err, coreerrors.ErrTooManyRewardTokens) {
		t.Fatalf("expected reward token limit, got %v", err)
	}
}
