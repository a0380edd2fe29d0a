package accrual

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/holiman/uint256"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/native/token"
)

const (
	// DefaultDuration is the length of one reward period.
	DefaultDuration uint64 = 7 * 24 * 60 * 60
	// DefaultGranularity is the accumulator step between stored checkpoints.
	DefaultGranularity uint64 = 24 * 60 * 60
	// DefaultMaxSteps bounds accumulator steps run inside one state update.
	DefaultMaxSteps = 64
	// MaxRewardTokens bounds the number of reward tokens per engine.
	MaxRewardTokens = 16
)

var (
	precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	errNilState  = errors.New("accrual engine: state not configured")
	errNilLedger = errors.New("accrual engine: balance ledger not configured")
)

// Ledger exposes the balances rewards are distributed over: staked tokens for
// a gauge, vote weight for a bribe.
type Ledger interface {
	TotalSupply() (*big.Int, error)
	BalanceOf(account string) (*big.Int, error)
}

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

// Config parametrises one engine instance.
type Config struct {
	// Namespace prefixes every state key of the instance.
	Namespace string
	// Custody holds the reward tokens paid out by the instance.
	Custody     [20]byte
	Duration    uint64
	Granularity uint64
	MaxSteps    int
	// StakeToken may not be used as a reward token.
	StakeToken string
}

func (c Config) withDefaults() Config {
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	if c.Granularity == 0 {
		c.Granularity = DefaultGranularity
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	c.StakeToken = token.NormalizeSymbol(c.StakeToken)
	return c
}

// RewardState is the accumulator of one reward token.
type RewardState struct {
	Token                string
	Rate                 *big.Int
	PeriodFinish         uint64
	RewardPerTokenStored *big.Int
	LastUpdateTime       uint64
}

func (rs *RewardState) clone() *RewardState {
	out := *rs
	out.Rate = new(big.Int).Set(rs.Rate)
	out.RewardPerTokenStored = new(big.Int).Set(rs.RewardPerTokenStored)
	return &out
}

// Checkpoint records the accumulator value at the end of one step.
type Checkpoint struct {
	Timestamp      uint64
	RewardPerToken *big.Int
}

// Cursor reports how far a bounded advance got.
type Cursor struct {
	Token          string
	LastUpdateTime uint64
	Target         uint64
	Steps          int
	Done           bool
}

// Engine is a Synthetix-style reward accumulator over an arbitrary balance
// ledger. Every balance change or claim must be preceded by
// UpdateRewardState for the affected account.
type Engine struct {
	state   engineState
	tokens  tokenLedger
	ledger  Ledger
	emitter events.Emitter
	nowFn   func() int64
	cfg     Config
}

// New creates an accrual engine.
func New(st engineState, tokens tokenLedger, ledger Ledger, cfg Config) *Engine {
	return &Engine{
		state:   st,
		tokens:  tokens,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		cfg:     cfg.withDefaults(),
	}
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil installs a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) now() uint64 {
	ts := time.Now().Unix()
	if e.nowFn != nil {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// RewardTokens lists the tokens this engine has been funded with.
func (e *Engine) RewardTokens() ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var list []string
	if err := e.state.KVGetList(e.tokensKey(), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (e *Engine) loadReward(tok string) (*RewardState, error) {
	rs := &RewardState{Token: tok, Rate: new(big.Int), RewardPerTokenStored: new(big.Int)}
	if _, err := e.state.KVGet(e.rewardKey(tok), rs); err != nil {
		return nil, err
	}
	if rs.Rate == nil {
		rs.Rate = new(big.Int)
	}
	if rs.RewardPerTokenStored == nil {
		rs.RewardPerTokenStored = new(big.Int)
	}
	return rs, nil
}

func (e *Engine) loadBig(key []byte) (*big.Int, error) {
	v := new(big.Int)
	if _, err := e.state.KVGet(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// advance moves the accumulator towards min(now, PeriodFinish) in at most
// maxSteps granularity-aligned steps. When persist is set each step appends
// a checkpoint. While supply is zero the reward clock is frozen: the period
// end is pushed back by the idle span so undistributed rewards are deferred
// rather than lost.
func (e *Engine) advance(rs *RewardState, supply *big.Int, now uint64, maxSteps int, persist bool) (int, error) {
	if supply.Sign() == 0 {
		if now > rs.LastUpdateTime {
			if rs.LastUpdateTime < rs.PeriodFinish {
				rs.PeriodFinish += now - rs.LastUpdateTime
			}
			rs.LastUpdateTime = now
		}
		return 0, nil
	}
	target := now
	if rs.PeriodFinish < target {
		target = rs.PeriodFinish
	}
	steps := 0
	for rs.LastUpdateTime < target {
		if maxSteps >= 0 && steps >= maxSteps {
			break
		}
		next := (rs.LastUpdateTime/e.cfg.Granularity + 1) * e.cfg.Granularity
		if next > target {
			next = target
		}
		delta := new(big.Int).SetUint64(next - rs.LastUpdateTime)
		delta.Mul(delta, rs.Rate)
		delta.Mul(delta, precision)
		delta.Quo(delta, supply)
		rs.RewardPerTokenStored.Add(rs.RewardPerTokenStored, delta)
		rs.LastUpdateTime = next
		steps++
		if persist {
			if err := e.appendCheckpoint(rs.Token, &Checkpoint{Timestamp: next, RewardPerToken: new(big.Int).Set(rs.RewardPerTokenStored)}); err != nil {
				return steps, err
			}
		}
	}
	return steps, nil
}

func caughtUp(rs *RewardState, now uint64) bool {
	return rs.LastUpdateTime >= now || rs.LastUpdateTime >= rs.PeriodFinish
}

func (e *Engine) appendCheckpoint(tok string, cp *Checkpoint) error {
	var n uint64
	if _, err := e.state.KVGet(e.checkpointCountKey(tok), &n); err != nil {
		return err
	}
	if err := e.state.KVPut(e.checkpointKey(tok, n), cp); err != nil {
		return err
	}
	return e.state.KVPut(e.checkpointCountKey(tok), n+1)
}

func (e *Engine) checkpointAt(tok string, index uint64) (*Checkpoint, error) {
	cp := new(Checkpoint)
	ok, err := e.state.KVGet(e.checkpointKey(tok, index), cp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("accrual: missing checkpoint %d for %s", index, tok)
	}
	return cp, nil
}

// RewardPerTokenAt returns the accumulator value recorded at or before ts.
func (e *Engine) RewardPerTokenAt(tok string, ts uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	tok = token.NormalizeSymbol(tok)
	var n uint64
	if _, err := e.state.KVGet(e.checkpointCountKey(tok), &n); err != nil {
		return nil, err
	}
	var readErr error
	idx := sort.Search(int(n), func(i int) bool {
		if readErr != nil {
			return true
		}
		cp, err := e.checkpointAt(tok, uint64(i))
		if err != nil {
			readErr = err
			return true
		}
		return cp.Timestamp > ts
	})
	if readErr != nil {
		return nil, readErr
	}
	if idx == 0 {
		return new(big.Int), nil
	}
	cp, err := e.checkpointAt(tok, uint64(idx-1))
	if err != nil {
		return nil, err
	}
	return cp.RewardPerToken, nil
}

// BatchAdvance moves the accumulator of tok by at most maxSteps steps and
// returns a cursor. Callers repeat until the cursor reports Done.
func (e *Engine) BatchAdvance(tok string, maxSteps int) (*Cursor, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if maxSteps <= 0 {
		return nil, fmt.Errorf("%w: maxSteps must be positive", coreerrors.ErrInvalidAmount)
	}
	tok = token.NormalizeSymbol(tok)
	rs, err := e.loadReward(tok)
	if err != nil {
		return nil, err
	}
	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	now := e.now()
	steps, err := e.advance(rs, supply, now, maxSteps, true)
	if err != nil {
		return nil, err
	}
	if err := e.state.KVPut(e.rewardKey(tok), rs); err != nil {
		return nil, err
	}
	target := now
	if rs.PeriodFinish < target {
		target = rs.PeriodFinish
	}
	return &Cursor{
		Token:          tok,
		LastUpdateTime: rs.LastUpdateTime,
		Target:         target,
		Steps:          steps,
		Done:           caughtUp(rs, now),
	}, nil
}

// UpdateRewardState brings every reward accumulator up to date and settles
// account against it. An empty account only advances the accumulators. When
// an accumulator is more than the configured step ceiling behind the call
// fails with ErrCatchUpRequired and BatchAdvance must be used first.
func (e *Engine) UpdateRewardState(account string) error {
	tokens, err := e.RewardTokens()
	if err != nil {
		return err
	}
	return e.updateTokens(account, tokens)
}

func (e *Engine) updateTokens(account string, tokens []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return err
	}
	var balance *big.Int
	if account != "" {
		if balance, err = e.ledger.BalanceOf(account); err != nil {
			return err
		}
	}
	now := e.now()
	for _, tok := range tokens {
		rs, err := e.loadReward(tok)
		if err != nil {
			return err
		}
		trial := rs.clone()
		if _, err := e.advance(trial, supply, now, e.cfg.MaxSteps, false); err != nil {
			return err
		}
		if !caughtUp(trial, now) {
			return fmt.Errorf("%w: %s at %d of %d", coreerrors.ErrCatchUpRequired, tok, rs.LastUpdateTime, now)
		}
		if _, err := e.advance(rs, supply, now, e.cfg.MaxSteps, true); err != nil {
			return err
		}
		if err := e.state.KVPut(e.rewardKey(tok), rs); err != nil {
			return err
		}
		if account == "" {
			continue
		}
		owed, err := e.earnedAgainst(tok, account, balance, rs.RewardPerTokenStored)
		if err != nil {
			return err
		}
		if err := e.state.KVPut(e.owedKey(tok, account), owed); err != nil {
			return err
		}
		if err := e.state.KVPut(e.paidKey(tok, account), new(big.Int).Set(rs.RewardPerTokenStored)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) earnedAgainst(tok, account string, balance, rpt *big.Int) (*big.Int, error) {
	paid, err := e.loadBig(e.paidKey(tok, account))
	if err != nil {
		return nil, err
	}
	owed, err := e.loadBig(e.owedKey(tok, account))
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(rpt, paid)
	if delta.Sign() <= 0 || balance.Sign() == 0 {
		return owed, nil
	}
	delta.Mul(delta, balance)
	delta.Quo(delta, precision)
	return owed.Add(owed, delta), nil
}

// RewardPerToken projects the accumulator of tok to now without mutating
// state.
func (e *Engine) RewardPerToken(tok string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rs, err := e.loadReward(token.NormalizeSymbol(tok))
	if err != nil {
		return nil, err
	}
	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	if _, err := e.advance(rs, supply, e.now(), -1, false); err != nil {
		return nil, err
	}
	return rs.RewardPerTokenStored, nil
}

// Earned returns what account could claim in tok right now.
func (e *Engine) Earned(tok, account string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	tok = token.NormalizeSymbol(tok)
	rpt, err := e.RewardPerToken(tok)
	if err != nil {
		return nil, err
	}
	balance, err := e.ledger.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	return e.earnedAgainst(tok, account, balance, rpt)
}

// RewardRate returns the current emission rate of tok per second.
func (e *Engine) RewardRate(tok string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rs, err := e.loadReward(token.NormalizeSymbol(tok))
	if err != nil {
		return nil, err
	}
	return rs.Rate, nil
}

// Reward returns a copy of the stored accumulator of tok.
func (e *Engine) Reward(tok string) (*RewardState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rs, err := e.loadReward(token.NormalizeSymbol(tok))
	if err != nil {
		return nil, err
	}
	return rs.clone(), nil
}

// Left returns the undistributed remainder of the active period of tok as
// NotifyRewardAmount would see it now, including time frozen while the
// supply is zero.
func (e *Engine) Left(tok string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rs, err := e.loadReward(token.NormalizeSymbol(tok))
	if err != nil {
		return nil, err
	}
	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	now := e.now()
	projected := rs.clone()
	if _, err := e.advance(projected, supply, now, 0, false); err != nil {
		return nil, err
	}
	return e.left(projected, now), nil
}

func (e *Engine) left(rs *RewardState, now uint64) *big.Int {
	if now >= rs.PeriodFinish {
		return new(big.Int)
	}
	remaining := new(big.Int).SetUint64(rs.PeriodFinish - now)
	return remaining.Mul(remaining, rs.Rate)
}

func (e *Engine) registerToken(tok string) error {
	list, err := e.RewardTokens()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == tok {
			return nil
		}
	}
	if len(list) >= MaxRewardTokens {
		return fmt.Errorf("%w: limit %d", coreerrors.ErrTooManyRewardTokens, MaxRewardTokens)
	}
	return e.state.KVPut(e.tokensKey(), append(list, tok))
}

// NotifyRewardAmount funds a new reward period of tok with amount pulled from
// funder. An active period's remainder is folded into the new rate and must be
// exceeded by amount.
func (e *Engine) NotifyRewardAmount(funder [20]byte, tok string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	tok = token.NormalizeSymbol(tok)
	if tok == "" || tok == e.cfg.StakeToken {
		return fmt.Errorf("%w: %q", coreerrors.ErrInvalidRewardToken, tok)
	}
	if amount == nil || amount.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	if err := e.registerToken(tok); err != nil {
		return err
	}
	if err := e.updateTokens("", []string{tok}); err != nil {
		return err
	}
	rs, err := e.loadReward(tok)
	if err != nil {
		return err
	}
	now := e.now()
	duration := new(big.Int).SetUint64(e.cfg.Duration)
	total := new(big.Int).Set(amount)
	if now < rs.PeriodFinish {
		left := e.left(rs, now)
		if amount.Cmp(left) <= 0 {
			return fmt.Errorf("%w: top-up %s does not exceed remaining %s", coreerrors.ErrRateOverflow, amount, left)
		}
		total.Add(total, left)
	}
	rate := new(big.Int).Quo(total, duration)
	if rate.Sign() == 0 {
		return fmt.Errorf("%w: %s over %ds rounds to zero", coreerrors.ErrRateOverflow, total, e.cfg.Duration)
	}
	if err := checkRepresentable(rate, e.cfg.Duration); err != nil {
		return err
	}
	if err := e.tokens.TransferFrom(tok, e.cfg.Custody, funder, e.cfg.Custody, amount); err != nil {
		return err
	}
	balance, err := e.tokens.BalanceOf(tok, e.cfg.Custody)
	if err != nil {
		return err
	}
	if rate.Cmp(new(big.Int).Quo(balance, duration)) > 0 {
		return fmt.Errorf("%w: rate %s exceeds funded balance %s", coreerrors.ErrRateOverflow, rate, balance)
	}
	rs.Rate = rate
	rs.LastUpdateTime = now
	rs.PeriodFinish = now + e.cfg.Duration
	if err := e.state.KVPut(e.rewardKey(tok), rs); err != nil {
		return err
	}
	e.emitter.Emit(events.RewardNotified{
		Source:       e.cfg.Namespace,
		Funder:       funder,
		Token:        tok,
		Amount:       new(big.Int).Set(amount),
		Rate:         new(big.Int).Set(rate),
		PeriodFinish: rs.PeriodFinish,
	})
	return nil
}

// checkRepresentable rejects rates whose accumulator increment over a full
// period would not fit in 256 bits.
func checkRepresentable(rate *big.Int, duration uint64) error {
	r, overflow := uint256.FromBig(rate)
	if overflow {
		return fmt.Errorf("%w: rate %s exceeds 256 bits", coreerrors.ErrRateOverflow, rate)
	}
	scale, _ := uint256.FromBig(precision)
	scale.Mul(scale, uint256.NewInt(duration))
	if _, overflow := new(uint256.Int).MulOverflow(r, scale); overflow {
		return fmt.Errorf("%w: rate %s overflows accumulator", coreerrors.ErrRateOverflow, rate)
	}
	return nil
}

// GetReward settles account and pays its pending rewards in tokens to
// recipient. Tokens with nothing pending are skipped.
func (e *Engine) GetReward(account string, recipient [20]byte, tokens []string) (map[string]*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		all, err := e.RewardTokens()
		if err != nil {
			return nil, err
		}
		tokens = all
	}
	normalized := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		normalized = append(normalized, token.NormalizeSymbol(tok))
	}
	if err := e.updateTokens(account, normalized); err != nil {
		return nil, err
	}
	paid := make(map[string]*big.Int, len(normalized))
	for _, tok := range normalized {
		owed, err := e.loadBig(e.owedKey(tok, account))
		if err != nil {
			return nil, err
		}
		if owed.Sign() == 0 {
			continue
		}
		if err := e.state.KVPut(e.owedKey(tok, account), new(big.Int)); err != nil {
			return nil, err
		}
		if err := e.tokens.Transfer(tok, e.cfg.Custody, recipient, owed); err != nil {
			return nil, err
		}
		paid[tok] = owed
		e.emitter.Emit(events.RewardPaid{
			Source:    e.cfg.Namespace,
			Account:   account,
			Recipient: recipient,
			Token:     tok,
			Amount:    new(big.Int).Set(owed),
		})
	}
	return paid, nil
}
