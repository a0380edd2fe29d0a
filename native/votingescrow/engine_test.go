package votingescrow_test

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "vedex/core/errors"
	"vedex/core/state"
	"vedex/native/token"
	"vedex/native/votingescrow"
	"vedex/storage"
)

const (
	day  = uint64(24 * 60 * 60)
	year = 365 * day
)

var (
	alice = [20]byte{0x01}
	bob   = [20]byte{0x02}
	unit  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type fixture struct {
	engine *votingescrow.Engine
	ledger *token.Ledger
	now    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	st := state.NewManager(db)
	ledger := token.NewLedger(st)
	authority := [20]byte{0xEE}
	if err := ledger.Register("VE", 18, authority); err != nil {
		t.Fatalf("register token: %v", err)
	}
	engine, err := votingescrow.NewEngine(st, ledger, votingescrow.DefaultParams("VE"))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f := &fixture{engine: engine, ledger: ledger, now: 1_700_000_000}
	engine.SetNowFunc(func() int64 { return f.now })
	supply := new(big.Int).Mul(unit, big.NewInt(1_000))
	for _, who := range [][20]byte{alice, bob} {
		if err := ledger.Mint(authority, "VE", who, supply); err != nil {
			t.Fatalf("mint: %v", err)
		}
		if err := ledger.Approve("VE", who, engine.Custody(), supply); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	return f
}

func (f *fixture) advance(seconds uint64) { f.now += int64(seconds) }

func (f *fixture) ts() uint64 { return uint64(f.now) }

func units(n int64) *big.Int { return new(big.Int).Mul(unit, big.NewInt(n)) }

func TestCreateLockFullWeight(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.CreateLock(alice, units(1), 4*year)
	if err != nil {
		t.Fatalf("create lock: %v", err)
	}
	power, err := f.engine.VotingPower(id)
	if err != nil {
		t.Fatalf("voting power: %v", err)
	}
	lower := new(big.Int).Div(new(big.Int).Mul(units(1), big.NewInt(99)), big.NewInt(100))
	if power.Cmp(lower) < 0 || power.Cmp(units(1)) > 0 {
		t.Fatalf("expected ~1e18 voting power, got %s", power)
	}

	half, err := f.engine.VotingPowerOf(id, f.ts()+2*year)
	if err != nil {
		t.Fatalf("voting power at: %v", err)
	}
	halfLower := new(big.Int).Div(new(big.Int).Mul(units(1), big.NewInt(49)), big.NewInt(100))
	halfUpper := new(big.Int).Div(units(1), big.NewInt(2))
	if half.Cmp(halfLower) < 0 || half.Cmp(halfUpper) > 0 {
		t.Fatalf("expected ~0.5e18 after two years, got %s", half)
	}

	pos, _ := f.engine.Position(id)
	if pos.End%votingescrow.Week != 0 {
		t.Fatalf("lock end %d not epoch aligned", pos.End)
	}
	custody, _ := f.ledger.BalanceOf("VE", f.engine.Custody())
	if custody.Cmp(units(1)) != 0 {
		t.Fatalf("expected custody to hold the lock, got %s", custody)
	}
}

func TestVotingPowerDecaysToZeroAtEnd(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.CreateLock(alice, units(10), 30*day)
	if err != nil {
		t.Fatalf("create lock: %v", err)
	}
	pos, _ := f.engine.Position(id)
	prev, _ := f.engine.VotingPowerOf(id, f.ts())
	for ts := f.ts(); ts <= pos.End+day; ts += day / 2 {
		power, err := f.engine.VotingPowerOf(id, ts)
		if err != nil {
			t.Fatalf("voting power: %v", err)
		}
		if power.Cmp(prev) > 0 {
			t.Fatalf("voting power increased at %d: %s > %s", ts, power, prev)
		}
		if ts >= pos.End && power.Sign() != 0 {
			t.Fatalf("expected zero power at %d (end %d), got %s", ts, pos.End, power)
		}
		prev = power
	}
	total, _ := f.engine.TotalVotingPowerAt(pos.End)
	if total.Sign() != 0 {
		t.Fatalf("expected zero total at end, got %s", total)
	}
}

func TestCreateLockValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.CreateLock(alice, big.NewInt(0), year); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.engine.CreateLock(alice, units(1), 0); !errors.Is(err, coreerrors.ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	id, err := f.engine.CreateLock(alice, units(1), 10*year)
	if err != nil {
		t.Fatalf("create clamped lock: %v", err)
	}
	pos, _ := f.engine.Position(id)
	if pos.End > f.ts()+votingescrow.DefaultMaxLock {
		t.Fatalf("lock end %d exceeds max lock", pos.End)
	}
	short, err := f.engine.CreateLock(alice, units(1), 1)
	if err != nil {
		t.Fatalf("create min lock: %v", err)
	}
	pos, _ = f.engine.Position(short)
	if pos.End <= f.ts() {
		t.Fatalf("clamped lock must end in the future, got %d", pos.End)
	}
}

func TestTotalVotingPowerMatchesSum(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateLock(alice, units(100), 2*year)
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	f.advance(3 * day)
	b, err := f.engine.CreateLock(bob, units(40), 20*day)
	if err != nil {
		t.Fatalf("lock b: %v", err)
	}
	f.advance(5 * day)
	if err := f.engine.IncreaseAmount(alice, a, units(7)); err != nil {
		t.Fatalf("increase amount: %v", err)
	}
	for _, offset := range []uint64{0, day, 10 * day, 30 * day, 400 * day, 3 * year} {
		at := f.ts() + offset
		pa, _ := f.engine.VotingPowerOf(a, at)
		pb, _ := f.engine.VotingPowerOf(b, at)
		total, err := f.engine.TotalVotingPowerAt(at)
		if err != nil {
			t.Fatalf("total at %d: %v", at, err)
		}
		sum := new(big.Int).Add(pa, pb)
		if total.Cmp(sum) != 0 {
			t.Fatalf("total %s != sum %s at +%d", total, sum, offset)
		}
	}

	// Historical query before the second lock existed.
	past, err := f.engine.TotalVotingPowerAt(f.ts() - 6*day)
	if err != nil {
		t.Fatalf("historical total: %v", err)
	}
	pa, _ := f.engine.VotingPowerOf(a, f.ts()-6*day)
	if past.Cmp(pa) != 0 {
		t.Fatalf("historical total %s != alice power %s", past, pa)
	}
}

func TestIncreaseAmountAndDuration(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.CreateLock(alice, units(10), 52*7*day)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := f.engine.VotingPower(id)
	if err := f.engine.IncreaseAmount(bob, id, units(1)); !errors.Is(err, coreerrors.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := f.engine.IncreaseAmount(alice, id, units(10)); err != nil {
		t.Fatalf("increase amount: %v", err)
	}
	after, _ := f.engine.VotingPower(id)
	if after.Cmp(new(big.Int).Mul(before, big.NewInt(2))) != 0 {
		t.Fatalf("expected doubled power, before %s after %s", before, after)
	}

	if err := f.engine.IncreaseDuration(alice, id, 10*day); !errors.Is(err, coreerrors.ErrInvalidDuration) {
		t.Fatalf("expected invalid duration for shorter lock, got %v", err)
	}
	if err := f.engine.IncreaseDuration(alice, id, 5*year); !errors.Is(err, coreerrors.ErrInvalidDuration) {
		t.Fatalf("expected invalid duration beyond max lock, got %v", err)
	}
	if err := f.engine.IncreaseDuration(alice, id, 2*year); err != nil {
		t.Fatalf("increase duration: %v", err)
	}
	extended, _ := f.engine.VotingPower(id)
	if extended.Cmp(after) <= 0 {
		t.Fatalf("expected extension to raise power: %s <= %s", extended, after)
	}

	pos, _ := f.engine.Position(id)
	f.now = int64(pos.End)
	if err := f.engine.IncreaseAmount(alice, id, units(1)); !errors.Is(err, coreerrors.ErrLockExpired) {
		t.Fatalf("expected lock expired, got %v", err)
	}
}

func TestMergePreservesAmountAndLaterEnd(t *testing.T) {
	f := newFixture(t)
	a, _ := f.engine.CreateLock(alice, units(3), year)
	b, _ := f.engine.CreateLock(alice, units(5), 2*year)
	c, _ := f.engine.CreateLock(bob, units(1), year)
	posA, _ := f.engine.Position(a)
	posB, _ := f.engine.Position(b)

	if err := f.engine.Merge(alice, a, a); !errors.Is(err, coreerrors.ErrSamePosition) {
		t.Fatalf("expected same position, got %v", err)
	}
	if err := f.engine.Merge(alice, a, c); !errors.Is(err, coreerrors.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	totalBefore, _ := f.engine.TotalLocked()
	if err := f.engine.Merge(alice, a, b); err != nil {
		t.Fatalf("merge: %v", err)
	}
	merged, _ := f.engine.Position(b)
	if merged.Amount.Cmp(new(big.Int).Add(posA.Amount, posB.Amount)) != 0 {
		t.Fatalf("unexpected merged amount %s", merged.Amount)
	}
	wantEnd := posA.End
	if posB.End > wantEnd {
		wantEnd = posB.End
	}
	if merged.End != wantEnd {
		t.Fatalf("expected end %d, got %d", wantEnd, merged.End)
	}
	if _, err := f.engine.OwnerOf(a); !errors.Is(err, coreerrors.ErrPositionNotFound) {
		t.Fatalf("expected burned source, got %v", err)
	}
	if claimant, err := f.engine.ClaimantOf(a); err != nil || claimant != alice {
		t.Fatalf("burned source claimant %x (%v), want alice", claimant, err)
	}
	if claimant, err := f.engine.ClaimantOf(b); err != nil || claimant != alice {
		t.Fatalf("live claimant %x (%v), want alice", claimant, err)
	}
	if _, err := f.engine.ClaimantOf(999); !errors.Is(err, coreerrors.ErrPositionNotFound) {
		t.Fatalf("expected unknown position, got %v", err)
	}
	power, _ := f.engine.VotingPower(a)
	if power.Sign() != 0 {
		t.Fatalf("burned position still has power %s", power)
	}
	totalAfter, _ := f.engine.TotalLocked()
	if totalAfter.Cmp(totalBefore) != 0 {
		t.Fatalf("merge changed locked total %s -> %s", totalBefore, totalAfter)
	}
	ids, _ := f.engine.PositionsOf(alice)
	if len(ids) != 1 || ids[0] != b {
		t.Fatalf("unexpected owner index %v", ids)
	}
}

func TestWithdrawAfterExpiry(t *testing.T) {
	f := newFixture(t)
	id, _ := f.engine.CreateLock(alice, units(2), 14*day)
	if _, err := f.engine.Withdraw(alice, id); !errors.Is(err, coreerrors.ErrLockNotExpired) {
		t.Fatalf("expected lock not expired, got %v", err)
	}
	pos, _ := f.engine.Position(id)
	f.now = int64(pos.End)
	balanceBefore, _ := f.ledger.BalanceOf("VE", alice)
	amount, err := f.engine.Withdraw(alice, id)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(units(2)) != 0 {
		t.Fatalf("unexpected withdrawn amount %s", amount)
	}
	balanceAfter, _ := f.ledger.BalanceOf("VE", alice)
	if new(big.Int).Sub(balanceAfter, balanceBefore).Cmp(units(2)) != 0 {
		t.Fatalf("tokens not returned")
	}
	if _, err := f.engine.Withdraw(alice, id); !errors.Is(err, coreerrors.ErrPositionNotFound) {
		t.Fatalf("expected second withdraw to fail, got %v", err)
	}
}

func TestPositionInUseBlocksExit(t *testing.T) {
	f := newFixture(t)
	a, _ := f.engine.CreateLock(alice, units(1), 7*day)
	b, _ := f.engine.CreateLock(alice, units(1), 7*day)
	if err := f.engine.SetVoted(a, true); err != nil {
		t.Fatalf("set voted: %v", err)
	}
	if err := f.engine.Attach(b); err != nil {
		t.Fatalf("attach: %v", err)
	}
	f.advance(8 * day)
	if _, err := f.engine.Withdraw(alice, a); !errors.Is(err, coreerrors.ErrPositionInUse) {
		t.Fatalf("expected voted position in use, got %v", err)
	}
	if err := f.engine.Merge(alice, b, a); !errors.Is(err, coreerrors.ErrPositionInUse) {
		t.Fatalf("expected attached position in use, got %v", err)
	}
	if err := f.engine.TransferPosition(alice, bob, a); !errors.Is(err, coreerrors.ErrPositionInUse) {
		t.Fatalf("expected transfer blocked, got %v", err)
	}
	if err := f.engine.SetVoted(a, false); err != nil {
		t.Fatalf("clear voted: %v", err)
	}
	if err := f.engine.TransferPosition(alice, bob, a); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, _ := f.engine.OwnerOf(a)
	if owner != bob {
		t.Fatalf("expected bob to own position")
	}
	if err := f.engine.Detach(b); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if _, err := f.engine.Withdraw(alice, b); err != nil {
		t.Fatalf("withdraw detached: %v", err)
	}
}

func TestCheckpointHistoryStrictlyIncreasing(t *testing.T) {
	f := newFixture(t)
	id, _ := f.engine.CreateLock(alice, units(5), year)
	// Same-second mutation supersedes the tail instead of appending.
	if err := f.engine.IncreaseAmount(alice, id, units(1)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	points, _ := f.engine.Checkpoints(id)
	if len(points) != 1 {
		t.Fatalf("expected superseded tail, got %d points", len(points))
	}
	f.advance(3 * 7 * day)
	if err := f.engine.IncreaseAmount(alice, id, units(1)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	global, _ := f.engine.GlobalCheckpoints()
	if len(global) < 4 {
		t.Fatalf("expected weekly global checkpoints, got %d", len(global))
	}
	for i := 1; i < len(global); i++ {
		if global[i].Timestamp <= global[i-1].Timestamp {
			t.Fatalf("global checkpoints not strictly increasing at %d", i)
		}
	}
}
