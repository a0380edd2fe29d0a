package voter_test

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "vedex/core/errors"
	"vedex/core/state"
	"vedex/native/bribe"
	"vedex/native/gauge"
	"vedex/native/pool"
	"vedex/native/token"
	"vedex/native/voter"
	"vedex/native/votingescrow"
	"vedex/storage"
)

const (
	day  = uint64(24 * 60 * 60)
	week = 7 * day
	year = 365 * day
)

var (
	authority = [20]byte{0xEE}
	alice     = [20]byte{0x01}
	bob       = [20]byte{0x02}
	carol     = [20]byte{0x03}
	funder    = [20]byte{0x0F}
	amm       = [20]byte{0x0A}
	poolA     = pool.ID{0xA1}
	poolB     = pool.ID{0xB2}
	unit      = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func units(n int64) *big.Int { return new(big.Int).Mul(unit, big.NewInt(n)) }

type fixture struct {
	ledger *token.Ledger
	pools  *pool.Registry
	escrow *votingescrow.Engine
	voter  *voter.Engine
	now    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	st := state.NewManager(db)
	f := &fixture{now: 1_700_000_000}
	clock := func() int64 { return f.now }

	f.ledger = token.NewLedger(st)
	for _, sym := range []string{"VE", "USDC"} {
		if err := f.ledger.Register(sym, 18, authority); err != nil {
			t.Fatalf("register %s: %v", sym, err)
		}
	}
	escrow, err := votingescrow.NewEngine(st, f.ledger, votingescrow.DefaultParams("VE"))
	if err != nil {
		t.Fatalf("new escrow: %v", err)
	}
	escrow.SetNowFunc(clock)
	f.escrow = escrow
	f.pools = pool.NewRegistry(st, f.ledger)
	for _, id := range []pool.ID{poolA, poolB} {
		if _, err := f.pools.Register(id, "USDC", "VE", false, authority); err != nil {
			t.Fatalf("register pool: %v", err)
		}
	}
	f.voter = voter.New(voter.Deps{
		State:       st,
		Tokens:      f.ledger,
		Escrow:      escrow,
		Pools:       f.pools,
		Now:         clock,
		RewardToken: "VE",
	})
	for _, id := range []pool.ID{poolA, poolB} {
		if _, err := f.voter.CreateGauge(id); err != nil {
			t.Fatalf("create gauge: %v", err)
		}
	}
	for _, who := range [][20]byte{alice, bob, funder} {
		f.mint(t, "VE", who, units(10_000))
		if err := f.ledger.Approve("VE", who, escrow.Custody(), units(10_000)); err != nil {
			t.Fatalf("approve escrow: %v", err)
		}
	}
	if err := f.ledger.Approve("VE", funder, f.voter.Address(), units(10_000)); err != nil {
		t.Fatalf("approve voter: %v", err)
	}
	return f
}

func (f *fixture) mint(t *testing.T, symbol string, to [20]byte, amount *big.Int) {
	t.Helper()
	if err := f.ledger.Mint(authority, symbol, to, amount); err != nil {
		t.Fatalf("mint %s: %v", symbol, err)
	}
}

func (f *fixture) lock(t *testing.T, who [20]byte, amount *big.Int) uint64 {
	t.Helper()
	id, err := f.escrow.CreateLock(who, amount, 4*year)
	if err != nil {
		t.Fatalf("create lock: %v", err)
	}
	return id
}

func weights(ws ...int64) []*big.Int {
	out := make([]*big.Int, len(ws))
	for i, w := range ws {
		out[i] = big.NewInt(w)
	}
	return out
}

func within(got, want, tolerance *big.Int) bool {
	diff := new(big.Int).Sub(got, want)
	return diff.Abs(diff).Cmp(tolerance) <= 0
}

func TestVoteSplitsVotingPower(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolA, poolB}, weights(1, 3)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	power, err := f.escrow.VotingPower(id)
	if err != nil {
		t.Fatalf("voting power: %v", err)
	}
	usedA, _ := f.voter.UsedWeight(id, poolA)
	usedB, _ := f.voter.UsedWeight(id, poolB)
	if want := new(big.Int).Quo(power, big.NewInt(4)); usedA.Cmp(want) != 0 {
		t.Fatalf("pool A weight %s, want %s", usedA, want)
	}
	if want := new(big.Int).Quo(new(big.Int).Mul(power, big.NewInt(3)), big.NewInt(4)); usedB.Cmp(want) != 0 {
		t.Fatalf("pool B weight %s, want %s", usedB, want)
	}
	sum := new(big.Int).Add(usedA, usedB)
	if sum.Cmp(power) > 0 {
		t.Fatalf("used %s exceeds power %s", sum, power)
	}
	total, err := f.voter.TotalWeight()
	if err != nil {
		t.Fatalf("total weight: %v", err)
	}
	if total.Cmp(sum) != 0 {
		t.Fatalf("total weight %s, want %s", total, sum)
	}
	b, err := f.voter.Bribe(poolB)
	if err != nil {
		t.Fatalf("bribe: %v", err)
	}
	balance, err := b.BalanceOf(id)
	if err != nil {
		t.Fatalf("bribe balance: %v", err)
	}
	if balance.Cmp(usedB) != 0 {
		t.Fatalf("bribe balance %s, want %s", balance, usedB)
	}
	pos, _ := f.escrow.Position(id)
	if !pos.Voted {
		t.Fatalf("expected position flagged as voted")
	}
}

func TestRevoteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	for i := 0; i < 2; i++ {
		if err := f.voter.Vote(alice, id, []pool.ID{poolA, poolB}, weights(2, 1)); err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
	}
	ballot, err := f.voter.Votes(id)
	if err != nil {
		t.Fatalf("votes: %v", err)
	}
	total, _ := f.voter.TotalWeight()
	if total.Cmp(ballot.UsedTotal()) != 0 {
		t.Fatalf("total weight %s drifted from ballot %s", total, ballot.UsedTotal())
	}
	weightA, _ := f.voter.PoolWeight(poolA)
	if weightA.Cmp(ballot.UsedOn(poolA)) != 0 {
		t.Fatalf("pool weight %s, ballot %s", weightA, ballot.UsedOn(poolA))
	}
}

func TestVoteValidation(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(10))
	cases := []struct {
		name    string
		caller  [20]byte
		pools   []pool.ID
		weights []*big.Int
		want    error
	}{
		{"empty", alice, nil, nil, coreerrors.ErrEmptyVote},
		{"arity", alice, []pool.ID{poolA}, weights(1, 1), coreerrors.ErrArityMismatch},
		{"unknown pool", alice, []pool.ID{{0xCC}}, weights(1), coreerrors.ErrUnknownPool},
		{"duplicate", alice, []pool.ID{poolA, poolA}, weights(1, 1), coreerrors.ErrDuplicatePool},
		{"zero weight", alice, []pool.ID{poolA}, weights(0), coreerrors.ErrZeroWeight},
		{"not owner", bob, []pool.ID{poolA}, weights(1), coreerrors.ErrNotOwner},
	}
	for _, tc := range cases {
		if err := f.voter.Vote(tc.caller, id, tc.pools, tc.weights); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	total, _ := f.voter.TotalWeight()
	if total.Sign() != 0 {
		t.Fatalf("rejected votes changed total weight to %s", total)
	}
}

func TestResetFreesPosition(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolA}, weights(1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.escrow.TransferPosition(alice, bob, id); !errors.Is(err, coreerrors.ErrPositionInUse) {
		t.Fatalf("expected voted position to be locked in place, got %v", err)
	}
	if err := f.voter.Reset(alice, id); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for _, read := range []func() (*big.Int, error){
		f.voter.TotalWeight,
		func() (*big.Int, error) { return f.voter.PoolWeight(poolA) },
		func() (*big.Int, error) { return f.voter.UsedWeight(id, poolA) },
	} {
		v, err := read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if v.Sign() != 0 {
			t.Fatalf("expected zero weight after reset, got %s", v)
		}
	}
	if err := f.escrow.TransferPosition(alice, bob, id); err != nil {
		t.Fatalf("transfer after reset: %v", err)
	}
}

func TestPokeFollowsDecay(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolA, poolB}, weights(1, 1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	before, _ := f.voter.TotalWeight()
	f.now += int64(year)
	if err := f.voter.Poke(id); err != nil {
		t.Fatalf("poke: %v", err)
	}
	after, _ := f.voter.TotalWeight()
	if after.Cmp(before) >= 0 {
		t.Fatalf("expected decayed weight, before %s after %s", before, after)
	}
	power, _ := f.escrow.VotingPower(id)
	if after.Cmp(power) > 0 {
		t.Fatalf("weight %s exceeds power %s", after, power)
	}
	usedA, _ := f.voter.UsedWeight(id, poolA)
	usedB, _ := f.voter.UsedWeight(id, poolB)
	if usedA.Cmp(usedB) != 0 {
		t.Fatalf("poke lost proportions: %s vs %s", usedA, usedB)
	}
}

func TestCreateGaugeRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	if _, err := f.voter.CreateGauge(poolA); !errors.Is(err, coreerrors.ErrGaugeExists) {
		t.Fatalf("expected gauge exists, got %v", err)
	}
	if _, err := f.voter.CreateGauge(pool.ID{0xCC}); !errors.Is(err, coreerrors.ErrUnknownPool) {
		t.Fatalf("expected unknown pool, got %v", err)
	}
	rec, err := f.voter.GaugeFor(poolA)
	if err != nil {
		t.Fatalf("gauge for: %v", err)
	}
	if rec.Gauge != gauge.Address(poolA) || rec.Bribe != bribe.Address(poolA) {
		t.Fatalf("unexpected gauge record %+v", rec)
	}
	pools, _ := f.voter.Pools()
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}
}

func TestDistributionFollowsWeights(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolA, poolB}, weights(1, 1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.voter.NotifyRewardAmount(funder, units(1_000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := f.voter.UpdateAll(); err != nil {
		t.Fatalf("update all: %v", err)
	}
	// Weight moved after the snapshot must not change this epoch's shares.
	if err := f.voter.Vote(alice, id, []pool.ID{poolA}, weights(1)); err != nil {
		t.Fatalf("revote: %v", err)
	}
	claimA, _ := f.voter.Claimable(poolA)
	claimB, _ := f.voter.Claimable(poolB)
	tolerance := big.NewInt(1_000)
	for name, claim := range map[string]*big.Int{"A": claimA, "B": claimB} {
		if !within(claim, units(500), tolerance) {
			t.Fatalf("pool %s claimable %s, want ~500e18", name, claim)
		}
	}
	if err := f.voter.Distro(); err != nil {
		t.Fatalf("distro: %v", err)
	}
	for _, p := range []pool.ID{poolA, poolB} {
		balance, err := f.ledger.BalanceOf("VE", gauge.Address(p))
		if err != nil {
			t.Fatalf("gauge balance: %v", err)
		}
		if !within(balance, units(500), tolerance) {
			t.Fatalf("gauge %s funded %s, want ~500e18", p.Hex(), balance)
		}
		left, _ := f.voter.Claimable(p)
		if left.Sign() != 0 {
			t.Fatalf("claimable not cleared: %s", left)
		}
	}
}

func TestPotWaitsForWeight(t *testing.T) {
	f := newFixture(t)
	if err := f.voter.NotifyRewardAmount(funder, units(10)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := f.voter.UpdateAll(); err != nil {
		t.Fatalf("update all: %v", err)
	}
	pot, _ := f.voter.Pot()
	if pot.Cmp(units(10)) != 0 {
		t.Fatalf("expected pot to wait for weight, got %s", pot)
	}
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolB}, weights(1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.voter.UpdateAll(); err != nil {
		t.Fatalf("update all: %v", err)
	}
	claim, _ := f.voter.Claimable(poolB)
	if !within(claim, units(10), big.NewInt(1_000)) {
		t.Fatalf("expected deferred pot on pool B, got %s", claim)
	}
}

func TestGaugeStakersSplitEpoch(t *testing.T) {
	f := newFixture(t)
	f.mint(t, "VE", carol, units(100))
	if err := f.ledger.Approve("VE", carol, f.escrow.Custody(), units(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	id := f.lock(t, carol, units(100))
	if err := f.voter.Vote(carol, id, []pool.ID{poolA}, weights(1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	g, err := f.voter.Gauge(poolA)
	if err != nil {
		t.Fatalf("gauge: %v", err)
	}
	lp := g.Pool().LPToken
	for _, who := range [][20]byte{alice, bob} {
		f.mint(t, lp, who, units(10))
		if err := f.ledger.Approve(lp, who, g.Address(), units(10)); err != nil {
			t.Fatalf("approve lp: %v", err)
		}
		if err := g.Deposit(who, units(10), 0); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	if err := f.voter.NotifyRewardAmount(funder, units(1_000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := f.voter.DistributeFor([]pool.ID{poolA}); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	f.now += int64(week)
	tolerance := big.NewInt(int64(week))
	for _, who := range [][20]byte{alice, bob} {
		before, _ := f.ledger.BalanceOf("VE", who)
		if _, err := f.voter.ClaimRewards(who, []pool.ID{poolA}, nil); err != nil {
			t.Fatalf("claim: %v", err)
		}
		after, _ := f.ledger.BalanceOf("VE", who)
		paid := new(big.Int).Sub(after, before)
		if !within(paid, units(500), tolerance) {
			t.Fatalf("staker received %s, want ~500e18", paid)
		}
	}
}

func TestDistributeFeesFundsBribe(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolA}, weights(1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	f.mint(t, "USDC", amm, units(70))
	if err := f.pools.RecordFees(amm, poolA, units(70), nil); err != nil {
		t.Fatalf("record fees: %v", err)
	}
	if err := f.voter.DistributeFees([]pool.ID{poolA}); err != nil {
		t.Fatalf("distribute fees: %v", err)
	}
	b, _ := f.voter.Bribe(poolA)
	rate, err := b.RewardRate("USDC")
	if err != nil {
		t.Fatalf("reward rate: %v", err)
	}
	if rate.Sign() == 0 {
		t.Fatalf("expected fees streamed to the bribe")
	}
	f.now += int64(week)
	paid, err := f.voter.ClaimBribes(alice, id, []pool.ID{poolA}, []string{"USDC"})
	if err != nil {
		t.Fatalf("claim bribes: %v", err)
	}
	if !within(paid["USDC"], units(70), big.NewInt(int64(week))) {
		t.Fatalf("voter received %s USDC, want ~70e18", paid["USDC"])
	}
	if _, err := f.voter.ClaimBribes(bob, id, []pool.ID{poolA}, nil); !errors.Is(err, coreerrors.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
}

func TestDistroDefersToGaugeWithoutStakers(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolA}, weights(1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	g, err := f.voter.Gauge(poolA)
	if err != nil {
		t.Fatalf("gauge: %v", err)
	}
	tolerance := big.NewInt(int64(week))

	if err := f.voter.NotifyRewardAmount(funder, units(1_000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := f.voter.Distro(); err != nil {
		t.Fatalf("first distro: %v", err)
	}

	// Nothing is staked, so the first period is frozen rather than spent.
	f.now += int64(week)
	left, err := g.Left("VE")
	if err != nil {
		t.Fatalf("left: %v", err)
	}
	if !within(left, units(1_000), tolerance) {
		t.Fatalf("frozen period should still hold ~1000e18, left %s", left)
	}
	if err := f.voter.NotifyRewardAmount(funder, units(900)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := f.voter.Distro(); err != nil {
		t.Fatalf("second distro: %v", err)
	}
	claim, _ := f.voter.Claimable(poolA)
	if !within(claim, units(900), big.NewInt(1_000)) {
		t.Fatalf("smaller top-up should wait as claimable, got %s", claim)
	}

	f.now += int64(week)
	if err := f.voter.NotifyRewardAmount(funder, units(900)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := f.voter.Distro(); err != nil {
		t.Fatalf("third distro: %v", err)
	}
	if claim, _ := f.voter.Claimable(poolA); claim.Sign() != 0 {
		t.Fatalf("accumulated claimable should reach the gauge, got %s", claim)
	}
	balance, _ := f.ledger.BalanceOf("VE", g.Address())
	if !within(balance, units(2_800), big.NewInt(2_000)) {
		t.Fatalf("gauge funded %s, want ~2800e18", balance)
	}
}

func TestDistributeFeesQueuesBehindFrozenBribe(t *testing.T) {
	f := newFixture(t)
	g, err := f.voter.Gauge(poolB)
	if err != nil {
		t.Fatalf("gauge: %v", err)
	}
	record := func(amount *big.Int) {
		t.Helper()
		f.mint(t, "USDC", amm, amount)
		if err := f.pools.RecordFees(amm, poolB, amount, nil); err != nil {
			t.Fatalf("record fees: %v", err)
		}
		if err := f.voter.DistributeFees([]pool.ID{poolB}); err != nil {
			t.Fatalf("distribute fees: %v", err)
		}
	}

	record(units(70))
	f.now += int64(week)
	record(units(60))
	queued, _, err := g.QueuedFees()
	if err != nil {
		t.Fatalf("queued fees: %v", err)
	}
	if queued.Cmp(units(60)) != 0 {
		t.Fatalf("fees below the frozen remainder should queue, got %s", queued)
	}

	f.now += int64(week)
	record(units(20))
	if queued, _, _ = g.QueuedFees(); queued.Sign() != 0 {
		t.Fatalf("queued fees should be forwarded once they exceed the remainder, got %s", queued)
	}
}

func TestLastOwnerClaimsBribesAfterMerge(t *testing.T) {
	f := newFixture(t)
	id := f.lock(t, alice, units(100))
	if err := f.voter.Vote(alice, id, []pool.ID{poolA}, weights(1)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	f.mint(t, "USDC", amm, units(70))
	if err := f.pools.RecordFees(amm, poolA, units(70), nil); err != nil {
		t.Fatalf("record fees: %v", err)
	}
	if err := f.voter.DistributeFees([]pool.ID{poolA}); err != nil {
		t.Fatalf("distribute fees: %v", err)
	}
	f.now += int64(week)
	if err := f.voter.Reset(alice, id); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := f.escrow.TransferPosition(alice, bob, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	into := f.lock(t, bob, units(10))
	if err := f.escrow.Merge(bob, id, into); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := f.escrow.OwnerOf(id); !errors.Is(err, coreerrors.ErrPositionNotFound) {
		t.Fatalf("expected merged position burned, got %v", err)
	}
	if _, err := f.voter.ClaimBribes(alice, id, []pool.ID{poolA}, nil); !errors.Is(err, coreerrors.ErrNotOwner) {
		t.Fatalf("expected earlier owner refused, got %v", err)
	}
	paid, err := f.voter.ClaimBribes(bob, id, []pool.ID{poolA}, []string{"USDC"})
	if err != nil {
		t.Fatalf("claim after merge: %v", err)
	}
	if !within(paid["USDC"], units(70), big.NewInt(int64(week))) {
		t.Fatalf("last owner received %s USDC, want ~70e18", paid["USDC"])
	}
}
