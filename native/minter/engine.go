package minter

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/crypto"
)

var (
	errNilState = errors.New("minter: state not configured")
	stateKey    = []byte("minter/state")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type tokenLedger interface {
	Mint(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error
	TotalSupply(symbol string) (*big.Int, error)
	BalanceOf(symbol string, addr [20]byte) (*big.Int, error)
	Approve(symbol string, owner, spender [20]byte, amount *big.Int) error
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// Escrow is the vote-escrow surface used for seeding locks and sizing the
// locker rebase.
type Escrow interface {
	Custody() [20]byte
	CreateLockFor(payer, recipient [20]byte, amount *big.Int, duration uint64) (uint64, error)
	TotalVotingPowerAt(ts uint64) (*big.Int, error)
}

// Voter receives the weekly emission.
type Voter interface {
	Address() [20]byte
	NotifyRewardAmount(caller [20]byte, amount *big.Int) error
}

// Rebase receives the locker growth and books it into its weekly ledger.
type Rebase interface {
	Address() [20]byte
	CheckpointToken() error
}

// Deps bundles the minter's collaborators.
type Deps struct {
	State    engineState
	Tokens   tokenLedger
	Escrow   Escrow
	Voter    Voter
	Rebase   Rebase
	Emitter  events.Emitter
	Now      func() int64
	Token    string
	Admin    [20]byte
	Epoch    uint64
	MaxLock  uint64
	Schedule Schedule
}

// State is the persisted emission schedule position.
type State struct {
	Initialized  bool
	ActivePeriod uint64
	Weekly       *big.Int
	Periods      uint64
}

// Engine mints the weekly emission and hands it to the voter, advancing one
// epoch per UpdatePeriod call.
type Engine struct {
	deps    Deps
	address [20]byte
}

// Address is the minter's account; it must be the mint authority of the
// emission token.
func Address() [20]byte { return crypto.ModuleAddress("minter") }

// New creates a minter.
func New(deps Deps) (*Engine, error) {
	if err := deps.Schedule.Validate(); err != nil {
		return nil, err
	}
	if deps.Epoch == 0 {
		return nil, errors.New("minter: epoch length must be positive")
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NoopEmitter{}
	}
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().Unix() }
	}
	return &Engine{deps: deps, address: Address()}, nil
}

// Address returns the minter account.
func (m *Engine) Address() [20]byte { return m.address }

func (m *Engine) now() uint64 {
	ts := m.deps.Now()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// State returns the stored schedule position.
func (m *Engine) State() (*State, error) {
	if m == nil || m.deps.State == nil {
		return nil, errNilState
	}
	st := &State{Weekly: new(big.Int)}
	if _, err := m.deps.State.KVGet(stateKey, st); err != nil {
		return nil, err
	}
	if st.Weekly == nil {
		st.Weekly = new(big.Int)
	}
	return st, nil
}

// Initialize mints totalSupplyHint to the minter and locks amounts[i] for
// recipients[i] at the maximum duration. It runs once; the first period
// starts at the next epoch boundary.
func (m *Engine) Initialize(caller [20]byte, recipients [][20]byte, amounts []*big.Int, totalSupplyHint *big.Int) error {
	st, err := m.State()
	if err != nil {
		return err
	}
	if st.Initialized {
		return coreerrors.ErrAlreadyInitialized
	}
	if m.deps.Admin != ([20]byte{}) && caller != m.deps.Admin {
		return fmt.Errorf("%w: minter initializer", coreerrors.ErrUnauthorized)
	}
	if len(recipients) != len(amounts) {
		return fmt.Errorf("%w: %d recipients, %d amounts", coreerrors.ErrArityMismatch, len(recipients), len(amounts))
	}
	if totalSupplyHint == nil || totalSupplyHint.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	seeded := new(big.Int)
	for _, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		seeded.Add(seeded, amount)
	}
	if seeded.Cmp(totalSupplyHint) > 0 {
		return fmt.Errorf("%w: seeded %s exceeds supply hint %s", coreerrors.ErrInvalidAmount, seeded, totalSupplyHint)
	}
	if totalSupplyHint.Sign() > 0 {
		if err := m.deps.Tokens.Mint(m.address, m.deps.Token, m.address, totalSupplyHint); err != nil {
			return err
		}
	}
	if seeded.Sign() > 0 {
		if err := m.deps.Tokens.Approve(m.deps.Token, m.address, m.deps.Escrow.Custody(), seeded); err != nil {
			return err
		}
		for i, recipient := range recipients {
			if _, err := m.deps.Escrow.CreateLockFor(m.address, recipient, amounts[i], m.deps.MaxLock); err != nil {
				return err
			}
		}
	}
	now := m.now()
	st.Initialized = true
	st.ActivePeriod = (now + m.deps.Epoch) / m.deps.Epoch * m.deps.Epoch
	st.Weekly = new(big.Int).Set(m.deps.Schedule.Initial)
	if err := m.deps.State.KVPut(stateKey, st); err != nil {
		return err
	}
	m.deps.Emitter.Emit(events.MinterInitialized{
		Recipients:  len(recipients),
		Minted:      new(big.Int).Set(totalSupplyHint),
		FirstPeriod: st.ActivePeriod,
	})
	return nil
}

// Due reports whether an UpdatePeriod call would advance the schedule.
func (m *Engine) Due() (bool, error) {
	st, err := m.State()
	if err != nil {
		return false, err
	}
	return st.Initialized && m.now() >= st.ActivePeriod+m.deps.Epoch, nil
}

// UpdatePeriod advances the schedule by exactly one epoch once the active
// epoch has ended. It decays the weekly emission, mints what the minter's
// balance cannot cover, books the locker rebase and forwards the weekly
// amount to the voter. It reports whether an epoch was advanced.
func (m *Engine) UpdatePeriod() (bool, error) {
	st, err := m.State()
	if err != nil {
		return false, err
	}
	if !st.Initialized {
		return false, coreerrors.ErrNotInitialized
	}
	now := m.now()
	if now < st.ActivePeriod+m.deps.Epoch {
		return false, nil
	}
	st.ActivePeriod += m.deps.Epoch
	st.Periods++
	st.Weekly = m.deps.Schedule.Next(st.Weekly)

	weekly := new(big.Int).Set(st.Weekly)
	growth, err := m.growth(weekly, st.ActivePeriod)
	if err != nil {
		return false, err
	}
	balance, err := m.deps.Tokens.BalanceOf(m.deps.Token, m.address)
	if err != nil {
		return false, err
	}
	supply, err := m.deps.Tokens.TotalSupply(m.deps.Token)
	if err != nil {
		return false, err
	}
	clamped := m.clamp(weekly, growth, balance, supply)
	required := new(big.Int).Add(weekly, growth)
	minted := new(big.Int)
	if balance.Cmp(required) < 0 {
		minted.Sub(required, balance)
		if err := m.deps.Tokens.Mint(m.address, m.deps.Token, m.address, minted); err != nil {
			return false, err
		}
		supply.Add(supply, minted)
	}
	if err := m.deps.State.KVPut(stateKey, st); err != nil {
		return false, err
	}
	if growth.Sign() > 0 && m.deps.Rebase != nil {
		if err := m.deps.Tokens.Transfer(m.deps.Token, m.address, m.deps.Rebase.Address(), growth); err != nil {
			return false, err
		}
		if err := m.deps.Rebase.CheckpointToken(); err != nil {
			return false, err
		}
	}
	if weekly.Sign() > 0 && m.deps.Voter != nil {
		if err := m.deps.Tokens.Approve(m.deps.Token, m.address, m.deps.Voter.Address(), weekly); err != nil {
			return false, err
		}
		if err := m.deps.Voter.NotifyRewardAmount(m.address, weekly); err != nil {
			return false, err
		}
	}
	m.deps.Emitter.Emit(events.EmissionMinted{
		Period:  st.ActivePeriod,
		Weekly:  weekly,
		Growth:  growth,
		Minted:  minted,
		Supply:  supply,
		Clamped: clamped,
	})
	return true, nil
}

// growth sizes the locker rebase as weekly scaled by the share of supply
// held as voting power at the start of the epoch being minted, so catching
// up several epochs late prices each one at its own boundary.
func (m *Engine) growth(weekly *big.Int, epochStart uint64) (*big.Int, error) {
	if m.deps.Rebase == nil || m.deps.Escrow == nil {
		return new(big.Int), nil
	}
	veSupply, err := m.deps.Escrow.TotalVotingPowerAt(epochStart)
	if err != nil {
		return nil, err
	}
	supply, err := m.deps.Tokens.TotalSupply(m.deps.Token)
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		return new(big.Int), nil
	}
	growth := new(big.Int).Mul(weekly, veSupply)
	return growth.Quo(growth, supply), nil
}

// clamp shrinks weekly then growth in place so that minting the shortfall
// above balance keeps supply within the cap.
func (m *Engine) clamp(weekly, growth, balance, supply *big.Int) bool {
	limit := m.deps.Schedule.SupplyCap
	if limit == nil || limit.Sign() == 0 {
		return false
	}
	room := new(big.Int).Sub(limit, supply)
	if room.Sign() < 0 {
		room.SetInt64(0)
	}
	room.Add(room, balance)
	if new(big.Int).Add(weekly, growth).Cmp(room) <= 0 {
		return false
	}
	if weekly.Cmp(room) > 0 {
		weekly.Set(room)
	}
	room.Sub(room, weekly)
	if growth.Cmp(room) > 0 {
		growth.Set(room)
	}
	return true
}
