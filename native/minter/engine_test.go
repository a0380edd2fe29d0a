package minter_test

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "vedex/core/errors"
	"vedex/core/state"
	"vedex/native/minter"
	"vedex/native/pool"
	"vedex/native/rebase"
	"vedex/native/token"
	"vedex/native/voter"
	"vedex/native/votingescrow"
	"vedex/storage"
)

const week = votingescrow.Week

var (
	alice = [20]byte{0x01}
	bob   = [20]byte{0x02}
	unit  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func units(n int64) *big.Int { return new(big.Int).Mul(unit, big.NewInt(n)) }

type fixture struct {
	ledger *token.Ledger
	escrow *votingescrow.Engine
	voter  *voter.Engine
	rebase *rebase.Distributor
	minter *minter.Engine
	now    int64
}

func newFixture(t *testing.T, schedule minter.Schedule) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	st := state.NewManager(db)
	f := &fixture{now: 1_700_000_000}
	clock := func() int64 { return f.now }

	f.ledger = token.NewLedger(st)
	if err := f.ledger.Register("VE", 18, minter.Address()); err != nil {
		t.Fatalf("register token: %v", err)
	}
	params := votingescrow.DefaultParams("VE")
	escrow, err := votingescrow.NewEngine(st, f.ledger, params)
	if err != nil {
		t.Fatalf("new escrow: %v", err)
	}
	escrow.SetNowFunc(clock)
	f.escrow = escrow
	f.voter = voter.New(voter.Deps{
		State:       st,
		Tokens:      f.ledger,
		Escrow:      escrow,
		Pools:       pool.NewRegistry(st, f.ledger),
		Now:         clock,
		RewardToken: "VE",
	})
	f.rebase = rebase.New(st, f.ledger, escrow, "VE", params.Epoch)
	f.rebase.SetNowFunc(clock)
	m, err := minter.New(minter.Deps{
		State:    st,
		Tokens:   f.ledger,
		Escrow:   escrow,
		Voter:    f.voter,
		Rebase:   f.rebase,
		Now:      clock,
		Token:    "VE",
		Epoch:    params.Epoch,
		MaxLock:  params.MaxLock,
		Schedule: schedule,
	})
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	f.minter = m
	f.voter.SetMinter(m)
	return f
}

func schedule(initial, tail int64, num, den uint64) minter.Schedule {
	return minter.Schedule{
		Initial:   units(initial),
		DecayNum:  num,
		DecayDen:  den,
		Tail:      units(tail),
		SupplyCap: new(big.Int),
	}
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	err := f.minter.Initialize(alice, [][20]byte{alice, bob}, []*big.Int{units(300), units(100)}, units(1_000))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func (f *fixture) toNextPeriod(t *testing.T) {
	t.Helper()
	st, err := f.minter.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	f.now = int64(st.ActivePeriod + week)
}

func TestInitializeSeedsLocksOnce(t *testing.T) {
	f := newFixture(t, schedule(100, 10, 98, 100))
	if _, err := f.minter.UpdatePeriod(); !errors.Is(err, coreerrors.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	f.initialize(t)
	if err := f.minter.Initialize(alice, nil, nil, units(1)); !errors.Is(err, coreerrors.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	ids, err := f.escrow.PositionsOf(bob)
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected one seeded lock for bob, got %v (%v)", ids, err)
	}
	pos, _ := f.escrow.Position(ids[0])
	if pos.Amount.Cmp(units(100)) != 0 {
		t.Fatalf("seeded amount %s", pos.Amount)
	}
	balance, _ := f.ledger.BalanceOf("VE", f.minter.Address())
	if balance.Cmp(units(600)) != 0 {
		t.Fatalf("minter kept %s, want 600e18", balance)
	}
	st, _ := f.minter.State()
	if st.ActivePeriod%week != 0 || st.ActivePeriod <= uint64(f.now) {
		t.Fatalf("first period %d not the next boundary after %d", st.ActivePeriod, f.now)
	}
}

func TestInitializeValidation(t *testing.T) {
	f := newFixture(t, schedule(100, 10, 98, 100))
	if err := f.minter.Initialize(alice, [][20]byte{alice}, nil, units(1)); !errors.Is(err, coreerrors.ErrArityMismatch) {
		t.Fatalf("expected arity mismatch, got %v", err)
	}
	if err := f.minter.Initialize(alice, [][20]byte{alice}, []*big.Int{units(2)}, units(1)); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestUpdatePeriodOncePerEpoch(t *testing.T) {
	f := newFixture(t, schedule(1_000, 10, 98, 100))
	f.initialize(t)
	if advanced, err := f.minter.UpdatePeriod(); err != nil || advanced {
		t.Fatalf("expected idle minter, got %v (%v)", advanced, err)
	}
	f.toNextPeriod(t)
	advanced, err := f.minter.UpdatePeriod()
	if err != nil || !advanced {
		t.Fatalf("expected advance, got %v (%v)", advanced, err)
	}
	pot, _ := f.voter.Pot()
	if pot.Cmp(units(980)) != 0 {
		t.Fatalf("voter received %s, want 980e18", pot)
	}
	if advanced, err := f.minter.UpdatePeriod(); err != nil || advanced {
		t.Fatalf("second call in the epoch advanced: %v (%v)", advanced, err)
	}
	again, _ := f.voter.Pot()
	if again.Cmp(pot) != 0 {
		t.Fatalf("second call changed the pot: %s", again)
	}
}

func TestUpdatePeriodCatchesUpOneEpochPerCall(t *testing.T) {
	f := newFixture(t, schedule(1_000, 10, 98, 100))
	f.initialize(t)
	st, _ := f.minter.State()
	f.now = int64(st.ActivePeriod + 3*week)
	for i := 0; i < 3; i++ {
		advanced, err := f.minter.UpdatePeriod()
		if err != nil || !advanced {
			t.Fatalf("call %d: expected advance, got %v (%v)", i, advanced, err)
		}
	}
	if advanced, _ := f.minter.UpdatePeriod(); advanced {
		t.Fatalf("advanced past the current epoch")
	}
	after, _ := f.minter.State()
	if after.Periods != 3 || after.ActivePeriod != st.ActivePeriod+3*week {
		t.Fatalf("unexpected state %+v", after)
	}
}

func TestEmissionDecaysToTail(t *testing.T) {
	f := newFixture(t, schedule(100, 30, 1, 2))
	f.initialize(t)
	want := []*big.Int{units(50), units(30), units(30)}
	for i, expected := range want {
		f.toNextPeriod(t)
		if _, err := f.minter.UpdatePeriod(); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		st, _ := f.minter.State()
		if st.Weekly.Cmp(expected) != 0 {
			t.Fatalf("period %d weekly %s, want %s", i, st.Weekly, expected)
		}
	}
}

func TestGrowthFundsRebase(t *testing.T) {
	f := newFixture(t, schedule(1_000, 10, 1, 1))
	f.initialize(t)
	f.toNextPeriod(t)
	if _, err := f.minter.UpdatePeriod(); err != nil {
		t.Fatalf("update: %v", err)
	}
	balance, _ := f.ledger.BalanceOf("VE", f.rebase.Address())
	if balance.Sign() <= 0 {
		t.Fatalf("expected locker growth, got %s", balance)
	}
	if balance.Cmp(units(1_000)) >= 0 {
		t.Fatalf("growth %s not below weekly emission", balance)
	}
	st, _ := f.rebase.State()
	if st.LastBalance.Cmp(balance) != 0 {
		t.Fatalf("rebase booked %s of %s", st.LastBalance, balance)
	}
}

func TestCatchUpGrowthUsesEpochStartPower(t *testing.T) {
	f := newFixture(t, schedule(1_000, 10, 98, 100))
	f.initialize(t)
	st, _ := f.minter.State()
	f.now = int64(st.ActivePeriod + 3*week)
	late, err := f.escrow.TotalVotingPowerAt(uint64(f.now))
	if err != nil {
		t.Fatalf("power now: %v", err)
	}
	for i := 0; i < 3; i++ {
		supply, _ := f.ledger.TotalSupply("VE")
		before, _ := f.ledger.BalanceOf("VE", f.rebase.Address())
		if _, err := f.minter.UpdatePeriod(); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		cur, _ := f.minter.State()
		power, err := f.escrow.TotalVotingPowerAt(cur.ActivePeriod)
		if err != nil {
			t.Fatalf("power at %d: %v", cur.ActivePeriod, err)
		}
		want := new(big.Int).Mul(cur.Weekly, power)
		want.Quo(want, supply)
		after, _ := f.ledger.BalanceOf("VE", f.rebase.Address())
		got := new(big.Int).Sub(after, before)
		if got.Cmp(want) != 0 {
			t.Fatalf("epoch %d growth %s, want %s", i, got, want)
		}
		if i == 0 {
			stale := new(big.Int).Mul(cur.Weekly, late)
			stale.Quo(stale, supply)
			if got.Cmp(stale) == 0 {
				t.Fatalf("epoch %d growth priced at call time", i)
			}
		}
	}
}

func TestSupplyCapClampsMint(t *testing.T) {
	sched := schedule(1_000, 10, 1, 1)
	sched.SupplyCap = units(1_500)
	f := newFixture(t, sched)
	f.initialize(t)
	f.toNextPeriod(t)
	if _, err := f.minter.UpdatePeriod(); err != nil {
		t.Fatalf("update: %v", err)
	}
	supply, _ := f.ledger.TotalSupply("VE")
	if supply.Cmp(units(1_500)) > 0 {
		t.Fatalf("supply %s exceeds cap", supply)
	}
	f.toNextPeriod(t)
	if _, err := f.minter.UpdatePeriod(); err != nil {
		t.Fatalf("update at cap: %v", err)
	}
	supply, _ = f.ledger.TotalSupply("VE")
	if supply.Cmp(units(1_500)) != 0 {
		t.Fatalf("supply %s, want the cap", supply)
	}
}

func TestDistroTicksMinter(t *testing.T) {
	f := newFixture(t, schedule(1_000, 10, 98, 100))
	f.initialize(t)
	f.toNextPeriod(t)
	if err := f.voter.Distro(); err != nil {
		t.Fatalf("distro: %v", err)
	}
	st, _ := f.minter.State()
	if st.Periods != 1 {
		t.Fatalf("expected distro to advance the minter, periods %d", st.Periods)
	}
}
