package gauge

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/crypto"
	"vedex/native/accrual"
	"vedex/native/pool"
)

var errNilState = errors.New("gauge: state not configured")

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

// Positions is the escrow surface a gauge needs to attach stakes to locks.
type Positions interface {
	OwnerOf(id uint64) ([20]byte, error)
	Attach(id uint64) error
	Detach(id uint64) error
}

// FeeSource sweeps a pool's trading fees to the gauge.
type FeeSource interface {
	ClaimTradingFees(caller [20]byte, id pool.ID) (*big.Int, *big.Int, error)
}

// FeeSink receives fees forwarded by the gauge, normally the pool's bribe.
type FeeSink interface {
	Address() [20]byte
	Left(token string) (*big.Int, error)
	NotifyRewardAmount(funder [20]byte, token string, amount *big.Int) error
}

// Deps bundles the collaborators shared by every gauge.
type Deps struct {
	State     engineState
	Tokens    tokenLedger
	Positions Positions
	Fees      FeeSource
	Emitter   events.Emitter
	Now       func() int64
	Accrual   accrual.Config
}

// Engine is the staking gauge of one pool. LP tokens staked here earn the
// emission pushed by the voter through the shared accrual engine.
type Engine struct {
	deps    Deps
	pool    *pool.Pool
	address [20]byte
	rewards *accrual.Engine
}

// Address derives the custody account of the gauge for pool id.
func Address(id pool.ID) [20]byte {
	return crypto.ModuleAddress("gauge/" + id.Hex())
}

// New binds a gauge to p.
func New(deps Deps, p *pool.Pool) *Engine {
	if deps.Emitter == nil {
		deps.Emitter = events.NoopEmitter{}
	}
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().Unix() }
	}
	g := &Engine{deps: deps, pool: p, address: Address(p.ID)}
	cfg := deps.Accrual
	cfg.Namespace = "gauge/" + p.ID.Hex()
	cfg.Custody = g.address
	cfg.StakeToken = p.LPToken
	g.rewards = accrual.New(deps.State, deps.Tokens, stakeLedger{g}, cfg)
	g.rewards.SetNowFunc(deps.Now)
	g.rewards.SetEmitter(deps.Emitter)
	return g
}

// Address returns the gauge custody account.
func (g *Engine) Address() [20]byte { return g.address }

// Pool returns the pool this gauge stakes.
func (g *Engine) Pool() *pool.Pool { return g.pool }

// Rewards exposes the underlying accumulator for reads and catch-up.
func (g *Engine) Rewards() *accrual.Engine { return g.rewards }

// AccountKey renders an address as the accrual account key.
func AccountKey(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func (g *Engine) key(parts ...string) []byte {
	buf := []byte("gauge/" + g.pool.ID.Hex())
	for _, part := range parts {
		buf = append(buf, '/')
		buf = append(buf, part...)
	}
	return buf
}

func (g *Engine) loadBig(key []byte) (*big.Int, error) {
	if g.deps.State == nil {
		return nil, errNilState
	}
	v := new(big.Int)
	if _, err := g.deps.State.KVGet(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// TotalSupply returns the amount of LP tokens staked.
func (g *Engine) TotalSupply() (*big.Int, error) { return g.loadBig(g.key("supply")) }

// BalanceOf returns the stake of account.
func (g *Engine) BalanceOf(account [20]byte) (*big.Int, error) {
	return g.loadBig(g.key("balance", AccountKey(account)))
}

// AttachedPosition returns the escrow position attached to account's stake,
// zero when none.
func (g *Engine) AttachedPosition(account [20]byte) (uint64, error) {
	if g.deps.State == nil {
		return 0, errNilState
	}
	var id uint64
	if _, err := g.deps.State.KVGet(g.key("position", AccountKey(account)), &id); err != nil {
		return 0, err
	}
	return id, nil
}

type stakeLedger struct{ g *Engine }

func (s stakeLedger) TotalSupply() (*big.Int, error) { return s.g.TotalSupply() }

func (s stakeLedger) BalanceOf(account string) (*big.Int, error) {
	return s.g.loadBig(s.g.key("balance", account))
}

func (g *Engine) setStake(account [20]byte, balance, supply *big.Int) error {
	if err := g.deps.State.KVPut(g.key("balance", AccountKey(account)), balance); err != nil {
		return err
	}
	return g.deps.State.KVPut(g.key("supply"), supply)
}

// Deposit stakes amount of the pool's LP token from caller. A non-zero
// positionID attaches the caller's escrow position for as long as the stake
// lives.
func (g *Engine) Deposit(caller [20]byte, amount *big.Int, positionID uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	if positionID != 0 {
		if err := g.attach(caller, positionID); err != nil {
			return err
		}
	}
	account := AccountKey(caller)
	if err := g.rewards.UpdateRewardState(account); err != nil {
		return err
	}
	if err := g.deps.Tokens.TransferFrom(g.pool.LPToken, g.address, caller, g.address, amount); err != nil {
		return err
	}
	balance, err := g.BalanceOf(caller)
	if err != nil {
		return err
	}
	supply, err := g.TotalSupply()
	if err != nil {
		return err
	}
	if err := g.setStake(caller, balance.Add(balance, amount), supply.Add(supply, amount)); err != nil {
		return err
	}
	g.deps.Emitter.Emit(events.StakeDeposited{Pool: g.pool.ID, Account: caller, Amount: new(big.Int).Set(amount), PositionID: positionID})
	return nil
}

func (g *Engine) attach(caller [20]byte, positionID uint64) error {
	if g.deps.Positions == nil {
		return fmt.Errorf("gauge: escrow not configured")
	}
	owner, err := g.deps.Positions.OwnerOf(positionID)
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("%w: position %d", coreerrors.ErrNotOwner, positionID)
	}
	current, err := g.AttachedPosition(caller)
	if err != nil {
		return err
	}
	if current == positionID {
		return nil
	}
	if current != 0 {
		return fmt.Errorf("%w: stake already attached to position %d", coreerrors.ErrPositionInUse, current)
	}
	if err := g.deps.Positions.Attach(positionID); err != nil {
		return err
	}
	return g.deps.State.KVPut(g.key("position", AccountKey(caller)), positionID)
}

// Withdraw unstakes amount back to caller. Emptying the stake releases any
// attached escrow position.
func (g *Engine) Withdraw(caller [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	balance, err := g.BalanceOf(caller)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: staked %s, requested %s", coreerrors.ErrInsufficientBalance, balance, amount)
	}
	if err := g.rewards.UpdateRewardState(AccountKey(caller)); err != nil {
		return err
	}
	supply, err := g.TotalSupply()
	if err != nil {
		return err
	}
	balance.Sub(balance, amount)
	if err := g.setStake(caller, balance, supply.Sub(supply, amount)); err != nil {
		return err
	}
	if balance.Sign() == 0 {
		positionID, err := g.AttachedPosition(caller)
		if err != nil {
			return err
		}
		if positionID != 0 {
			if err := g.deps.Positions.Detach(positionID); err != nil {
				return err
			}
			if err := g.deps.State.KVPut(g.key("position", AccountKey(caller)), uint64(0)); err != nil {
				return err
			}
		}
	}
	if err := g.deps.Tokens.Transfer(g.pool.LPToken, g.address, caller, amount); err != nil {
		return err
	}
	g.deps.Emitter.Emit(events.StakeWithdrawn{Pool: g.pool.ID, Account: caller, Amount: new(big.Int).Set(amount)})
	return nil
}

// GetReward pays caller's pending rewards in tokens, every reward token when
// tokens is empty.
func (g *Engine) GetReward(caller [20]byte, tokens []string) (map[string]*big.Int, error) {
	return g.rewards.GetReward(AccountKey(caller), caller, tokens)
}

// NotifyRewardAmount funds the gauge with amount of token pulled from funder.
func (g *Engine) NotifyRewardAmount(funder [20]byte, token string, amount *big.Int) error {
	return g.rewards.NotifyRewardAmount(funder, token, amount)
}

// Earned returns account's claimable amount of token.
func (g *Engine) Earned(token string, account [20]byte) (*big.Int, error) {
	return g.rewards.Earned(token, AccountKey(account))
}

// Left returns the undistributed remainder of token's active period.
func (g *Engine) Left(token string) (*big.Int, error) { return g.rewards.Left(token) }

// RewardRate returns the per-second emission of token.
func (g *Engine) RewardRate(token string) (*big.Int, error) { return g.rewards.RewardRate(token) }

// QueuedFees returns trading fees held by the gauge that were too small to
// forward.
func (g *Engine) QueuedFees() (*big.Int, *big.Int, error) {
	f0, err := g.loadBig(g.key("fees", "0"))
	if err != nil {
		return nil, nil, err
	}
	f1, err := g.loadBig(g.key("fees", "1"))
	if err != nil {
		return nil, nil, err
	}
	return f0, f1, nil
}

// ClaimFees sweeps the pool's trading fees into the gauge and forwards each
// side to sink once it exceeds the sink's remaining rewards and yields a
// non-zero rate. Smaller amounts stay queued.
func (g *Engine) ClaimFees(sink FeeSink) (*big.Int, *big.Int, error) {
	if g.deps.Fees == nil {
		return nil, nil, fmt.Errorf("gauge: fee source not configured")
	}
	claimed0, claimed1, err := g.deps.Fees.ClaimTradingFees(g.address, g.pool.ID)
	if err != nil {
		return nil, nil, err
	}
	queued0, queued1, err := g.QueuedFees()
	if err != nil {
		return nil, nil, err
	}
	queued0.Add(queued0, claimed0)
	queued1.Add(queued1, claimed1)
	g.deps.Emitter.Emit(events.FeesClaimed{Pool: g.pool.ID, Amount0: new(big.Int).Set(claimed0), Amount1: new(big.Int).Set(claimed1)})

	duration := new(big.Int).SetUint64(g.rewards.Config().Duration)
	for i, leg := range []struct {
		token  string
		amount *big.Int
	}{{g.pool.Token0, queued0}, {g.pool.Token1, queued1}} {
		if sink != nil && leg.amount.Sign() > 0 {
			left, err := sink.Left(leg.token)
			if err != nil {
				return nil, nil, err
			}
			if leg.amount.Cmp(left) > 0 && new(big.Int).Quo(leg.amount, duration).Sign() > 0 {
				if err := g.deps.Tokens.Approve(leg.token, g.address, sink.Address(), leg.amount); err != nil {
					return nil, nil, err
				}
				if err := sink.NotifyRewardAmount(g.address, leg.token, leg.amount); err != nil {
					return nil, nil, err
				}
				leg.amount.SetInt64(0)
			}
		}
		if err := g.deps.State.KVPut(g.key("fees", fmt.Sprint(i)), leg.amount); err != nil {
			return nil, nil, err
		}
	}
	return claimed0, claimed1, nil
}
