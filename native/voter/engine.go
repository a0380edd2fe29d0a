package voter

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/crypto"
	"vedex/native/accrual"
	"vedex/native/bribe"
	"vedex/native/gauge"
	"vedex/native/pool"
)

var (
	errNilState = errors.New("voter: state not configured")
	precision   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
}

type tokenLedger interface {
	BalanceOf(symbol string, addr [20]byte) (*big.Int, error)
	Approve(symbol string, owner, spender [20]byte, amount *big.Int) error
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error
}

// Escrow is the vote-escrow surface the voter reads voting power from.
type Escrow interface {
	OwnerOf(id uint64) ([20]byte, error)
	ClaimantOf(id uint64) ([20]byte, error)
	VotingPowerOf(id uint64, ts uint64) (*big.Int, error)
	SetVoted(id uint64, voted bool) error
	Attach(id uint64) error
	Detach(id uint64) error
}

// Pools is the pool registry surface used to create gauges.
type Pools interface {
	Get(id pool.ID) (*pool.Pool, error)
	SetFeeClaimer(id pool.ID, claimer [20]byte) error
	ClaimTradingFees(caller [20]byte, id pool.ID) (*big.Int, *big.Int, error)
}

// PeriodTicker advances the emission schedule. Distribution ticks it first so
// a due emission is never skipped.
type PeriodTicker interface {
	UpdatePeriod() (bool, error)
}

// Deps bundles the voter's collaborators.
type Deps struct {
	State       engineState
	Tokens      tokenLedger
	Escrow      Escrow
	Pools       Pools
	Emitter     events.Emitter
	Now         func() int64
	RewardToken string
	Accrual     accrual.Config
}

// Engine converts escrow votes into per-pool emission shares and pushes the
// weekly emission into gauges.
type Engine struct {
	deps    Deps
	address [20]byte
	minter  PeriodTicker
}

// Address is the voter's custody account.
func Address() [20]byte { return crypto.ModuleAddress("voter") }

// New creates a voter.
func New(deps Deps) *Engine {
	if deps.Emitter == nil {
		deps.Emitter = events.NoopEmitter{}
	}
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().Unix() }
	}
	return &Engine{deps: deps, address: Address()}
}

// SetMinter installs the schedule ticked before distribution.
func (v *Engine) SetMinter(m PeriodTicker) { v.minter = m }

// Address returns the voter custody account.
func (v *Engine) Address() [20]byte { return v.address }

// RewardToken returns the emission token symbol.
func (v *Engine) RewardToken() string { return v.deps.RewardToken }

func (v *Engine) now() uint64 {
	ts := v.deps.Now()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (v *Engine) ready() error {
	if v == nil || v.deps.State == nil {
		return errNilState
	}
	return nil
}

func (v *Engine) loadBig(key []byte) (*big.Int, error) {
	out := new(big.Int)
	if _, err := v.deps.State.KVGet(key, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Engine) addBig(key []byte, delta *big.Int) (*big.Int, error) {
	current, err := v.loadBig(key)
	if err != nil {
		return nil, err
	}
	current.Add(current, delta)
	if current.Sign() < 0 {
		return nil, fmt.Errorf("voter: negative balance under %s", key)
	}
	return current, v.deps.State.KVPut(key, current)
}

// Gauge instantiates the gauge of pool id.
func (v *Engine) Gauge(id pool.ID) (*gauge.Engine, error) {
	if _, err := v.GaugeFor(id); err != nil {
		return nil, err
	}
	p, err := v.deps.Pools.Get(id)
	if err != nil {
		return nil, err
	}
	return gauge.New(gauge.Deps{
		State:     v.deps.State,
		Tokens:    v.deps.Tokens,
		Positions: v.deps.Escrow,
		Fees:      v.deps.Pools,
		Emitter:   v.deps.Emitter,
		Now:       v.deps.Now,
		Accrual:   v.deps.Accrual,
	}, p), nil
}

// Bribe instantiates the bribe of pool id.
func (v *Engine) Bribe(id pool.ID) (*bribe.Engine, error) {
	if _, err := v.GaugeFor(id); err != nil {
		return nil, err
	}
	return v.bribe(id), nil
}

func (v *Engine) bribe(id pool.ID) *bribe.Engine {
	return bribe.New(bribe.Deps{
		State:   v.deps.State,
		Tokens:  v.deps.Tokens,
		Owners:  v.deps.Escrow,
		Emitter: v.deps.Emitter,
		Now:     v.deps.Now,
		Accrual: v.deps.Accrual,
	}, id)
}

// CreateGauge registers a gauge and bribe pair for a registered pool.
func (v *Engine) CreateGauge(id pool.ID) (*GaugeRecord, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	if _, err := v.deps.Pools.Get(id); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrUnknownPool, err)
	}
	ok, err := v.deps.State.KVGet(gaugeKey(id), new(GaugeRecord))
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrGaugeExists, id.Hex())
	}
	rec := &GaugeRecord{Pool: id, Gauge: gauge.Address(id), Bribe: bribe.Address(id), CreatedAt: v.now()}
	if err := v.deps.State.KVPut(gaugeKey(id), rec); err != nil {
		return nil, err
	}
	var pools []pool.ID
	if err := v.deps.State.KVGetList(poolsKey, &pools); err != nil {
		return nil, err
	}
	if err := v.deps.State.KVPut(poolsKey, append(pools, id)); err != nil {
		return nil, err
	}
	if err := v.fold(); err != nil {
		return nil, err
	}
	index, err := v.loadBig(indexKey)
	if err != nil {
		return nil, err
	}
	if err := v.deps.State.KVPut(supplyIndexKey(id), index); err != nil {
		return nil, err
	}
	if err := v.deps.Pools.SetFeeClaimer(id, rec.Gauge); err != nil {
		return nil, err
	}
	v.deps.Emitter.Emit(events.GaugeCreated{Pool: id, Gauge: rec.Gauge, Bribe: rec.Bribe})
	return rec, nil
}

// GaugeFor returns the gauge record of pool id.
func (v *Engine) GaugeFor(id pool.ID) (*GaugeRecord, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	rec := new(GaugeRecord)
	ok, err := v.deps.State.KVGet(gaugeKey(id), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrUnknownPool, id.Hex())
	}
	return rec, nil
}

// Pools lists pools with a gauge in creation order.
func (v *Engine) Pools() ([]pool.ID, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	var pools []pool.ID
	if err := v.deps.State.KVGetList(poolsKey, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

// Votes returns the last ballot of a position.
func (v *Engine) Votes(positionID uint64) (*Ballot, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	ballot := new(Ballot)
	if _, err := v.deps.State.KVGet(ballotKey(positionID), ballot); err != nil {
		return nil, err
	}
	return ballot, nil
}

// UsedWeight returns the weight positionID placed on pool id.
func (v *Engine) UsedWeight(positionID uint64, id pool.ID) (*big.Int, error) {
	ballot, err := v.Votes(positionID)
	if err != nil {
		return nil, err
	}
	return ballot.UsedOn(id), nil
}

// PoolWeight returns the aggregate weight placed on pool id.
func (v *Engine) PoolWeight(id pool.ID) (*big.Int, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.loadBig(weightKey(id))
}

// TotalWeight returns the running sum of every pool weight.
func (v *Engine) TotalWeight() (*big.Int, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.loadBig(totalWeightKey)
}

// Pot returns emission received and not yet folded into the index.
func (v *Engine) Pot() (*big.Int, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.loadBig(potKey)
}

// Claimable returns the emission snapshotted for pool id and not yet pushed
// to its gauge.
func (v *Engine) Claimable(id pool.ID) (*big.Int, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.loadBig(claimableKey(id))
}
