package bribe

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/crypto"
	"vedex/native/accrual"
	"vedex/native/pool"
)

var errNilState = errors.New("bribe: state not configured")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
}

type tokenLedger interface {
	BalanceOf(symbol string, addr [20]byte) (*big.Int, error)
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error
}

// Owners resolves who may claim for an escrow position. Burned positions
// resolve to their last owner.
type Owners interface {
	ClaimantOf(id uint64) ([20]byte, error)
}

// Deps bundles the collaborators shared by every bribe.
type Deps struct {
	State   engineState
	Tokens  tokenLedger
	Owners  Owners
	Emitter events.Emitter
	Now     func() int64
	Accrual accrual.Config
}

// Engine distributes third-party incentives for one pool to the escrow
// positions voting for it, weighted by the weight each position placed.
type Engine struct {
	deps    Deps
	pool    pool.ID
	address [20]byte
	rewards *accrual.Engine
}

// Address derives the custody account of the bribe for pool id.
func Address(id pool.ID) [20]byte {
	return crypto.ModuleAddress("bribe/" + id.Hex())
}

// New binds a bribe to pool id.
func New(deps Deps, id pool.ID) *Engine {
	if deps.Emitter == nil {
		deps.Emitter = events.NoopEmitter{}
	}
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().Unix() }
	}
	b := &Engine{deps: deps, pool: id, address: Address(id)}
	cfg := deps.Accrual
	cfg.Namespace = "bribe/" + id.Hex()
	cfg.Custody = b.address
	cfg.StakeToken = ""
	b.rewards = accrual.New(deps.State, deps.Tokens, voteLedger{b}, cfg)
	b.rewards.SetNowFunc(deps.Now)
	b.rewards.SetEmitter(deps.Emitter)
	return b
}

// Address returns the bribe custody account.
func (b *Engine) Address() [20]byte { return b.address }

// Rewards exposes the underlying accumulator for reads and catch-up.
func (b *Engine) Rewards() *accrual.Engine { return b.rewards }

// AccountKey renders a position id as the accrual account key.
func AccountKey(positionID uint64) string { return "pos:" + strconv.FormatUint(positionID, 10) }

func (b *Engine) key(parts ...string) []byte {
	buf := []byte("bribe/" + b.pool.Hex())
	for _, part := range parts {
		buf = append(buf, '/')
		buf = append(buf, part...)
	}
	return buf
}

func (b *Engine) loadBig(key []byte) (*big.Int, error) {
	if b.deps.State == nil {
		return nil, errNilState
	}
	v := new(big.Int)
	if _, err := b.deps.State.KVGet(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// TotalSupply returns the vote weight currently placed on the pool.
func (b *Engine) TotalSupply() (*big.Int, error) { return b.loadBig(b.key("supply")) }

// BalanceOf returns the vote weight placed by positionID.
func (b *Engine) BalanceOf(positionID uint64) (*big.Int, error) {
	return b.loadBig(b.key("balance", AccountKey(positionID)))
}

type voteLedger struct{ b *Engine }

func (v voteLedger) TotalSupply() (*big.Int, error) { return v.b.TotalSupply() }

func (v voteLedger) BalanceOf(account string) (*big.Int, error) {
	return v.b.loadBig(v.b.key("balance", account))
}

func (b *Engine) adjust(positionID uint64, delta *big.Int) error {
	account := AccountKey(positionID)
	if err := b.rewards.UpdateRewardState(account); err != nil {
		return err
	}
	balance, err := b.BalanceOf(positionID)
	if err != nil {
		return err
	}
	supply, err := b.TotalSupply()
	if err != nil {
		return err
	}
	balance.Add(balance, delta)
	supply.Add(supply, delta)
	if balance.Sign() < 0 || supply.Sign() < 0 {
		return fmt.Errorf("%w: vote weight of position %d", coreerrors.ErrInsufficientBalance, positionID)
	}
	if err := b.deps.State.KVPut(b.key("balance", account), balance); err != nil {
		return err
	}
	return b.deps.State.KVPut(b.key("supply"), supply)
}

// Deposit records weight placed on the pool by positionID. Only the voter
// calls it.
func (b *Engine) Deposit(positionID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	return b.adjust(positionID, amount)
}

// Withdraw removes weight placed on the pool by positionID. Only the voter
// calls it.
func (b *Engine) Withdraw(positionID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	return b.adjust(positionID, new(big.Int).Neg(amount))
}

// GetReward pays the pending incentives of positionID to its owner. Only
// the owner may claim; once the position is withdrawn or merged away its
// last owner keeps that right.
func (b *Engine) GetReward(caller [20]byte, positionID uint64, tokens []string) (map[string]*big.Int, error) {
	if b.deps.Owners == nil {
		return nil, fmt.Errorf("bribe: escrow not configured")
	}
	owner, err := b.deps.Owners.ClaimantOf(positionID)
	if err != nil {
		return nil, err
	}
	if owner != caller {
		return nil, fmt.Errorf("%w: position %d", coreerrors.ErrNotOwner, positionID)
	}
	return b.rewards.GetReward(AccountKey(positionID), owner, tokens)
}

// NotifyRewardAmount funds an incentive of amount of token pulled from
// funder. Anyone may fund a bribe.
func (b *Engine) NotifyRewardAmount(funder [20]byte, token string, amount *big.Int) error {
	return b.rewards.NotifyRewardAmount(funder, token, amount)
}

// Earned returns what positionID could claim in token right now.
func (b *Engine) Earned(token string, positionID uint64) (*big.Int, error) {
	return b.rewards.Earned(token, AccountKey(positionID))
}

// Left returns the undistributed remainder of token's active period.
func (b *Engine) Left(token string) (*big.Int, error) { return b.rewards.Left(token) }

// RewardRate returns the per-second emission of token.
func (b *Engine) RewardRate(token string) (*big.Int, error) { return b.rewards.RewardRate(token) }
