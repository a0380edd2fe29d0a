package bribe_test

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "vedex/core/errors"
	"vedex/core/state"
	"vedex/native/bribe"
	"vedex/native/pool"
	"vedex/native/token"
	"vedex/storage"
)

const week = uint64(7 * 24 * 60 * 60)

var (
	authority = [20]byte{0xEE}
	alice     = [20]byte{0x01}
	bob       = [20]byte{0x02}
	sponsor   = [20]byte{0x05}
	unit      = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func units(n int64) *big.Int { return new(big.Int).Mul(unit, big.NewInt(n)) }

type owners map[uint64][20]byte

func (o owners) ClaimantOf(id uint64) ([20]byte, error) {
	owner, ok := o[id]
	if !ok {
		return [20]byte{}, coreerrors.ErrPositionNotFound
	}
	return owner, nil
}

func newBribe(t *testing.T, now *int64) (*bribe.Engine, *token.Ledger) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	st := state.NewManager(db)
	ledger := token.NewLedger(st)
	if err := ledger.Register("USDC", 18, authority); err != nil {
		t.Fatalf("register: %v", err)
	}
	b := bribe.New(bribe.Deps{
		State:  st,
		Tokens: ledger,
		Owners: owners{1: alice, 2: bob},
		Now:    func() int64 { return *now },
	}, pool.ID{0x01})
	if err := ledger.Mint(authority, "USDC", sponsor, units(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve("USDC", sponsor, b.Address(), units(1_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return b, ledger
}

func TestBribeSplitsByVoteWeight(t *testing.T) {
	now := int64(1_700_000_000)
	b, ledger := newBribe(t, &now)
	if err := b.Deposit(1, units(3)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := b.Deposit(2, units(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := b.NotifyRewardAmount(sponsor, "USDC", units(400)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	now += int64(week)
	tolerance := big.NewInt(int64(week))
	earned1, _ := b.Earned("USDC", 1)
	earned2, _ := b.Earned("USDC", 2)
	if !within(earned1, units(300), tolerance) || !within(earned2, units(100), tolerance) {
		t.Fatalf("unexpected split %s / %s", earned1, earned2)
	}
	if _, err := b.GetReward(bob, 1, nil); !errors.Is(err, coreerrors.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := b.GetReward(alice, 1, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	balance, _ := ledger.BalanceOf("USDC", alice)
	if balance.Cmp(earned1) != 0 {
		t.Fatalf("alice received %s, earned %s", balance, earned1)
	}
}

func TestBribeWithdrawStopsAccrual(t *testing.T) {
	now := int64(1_700_000_000)
	b, _ := newBribe(t, &now)
	if err := b.Deposit(1, units(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := b.NotifyRewardAmount(sponsor, "USDC", units(700)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	now += int64(week / 7)
	if err := b.Withdraw(1, units(1)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	stopped, _ := b.Earned("USDC", 1)
	now += int64(week / 7)
	later, _ := b.Earned("USDC", 1)
	if later.Cmp(stopped) != 0 {
		t.Fatalf("accrued after withdrawal: %s -> %s", stopped, later)
	}
	if !within(stopped, units(100), big.NewInt(int64(week))) {
		t.Fatalf("earned %s, want ~100e18", stopped)
	}
	if err := b.Withdraw(1, units(1)); !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func within(got, want, tolerance *big.Int) bool {
	if got == nil {
		return false
	}
	diff := new(big.Int).Sub(got, want)
	return diff.Abs(diff).Cmp(tolerance) <= 0
}
