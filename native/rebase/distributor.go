package rebase

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"vedex/core/events"
	"vedex/crypto"
	"vedex/native/votingescrow"
)

const (
	// checkpointWeeks bounds how far back one CheckpointToken call spreads
	// newly received tokens.
	checkpointWeeks = 20
	// DefaultClaimWeeks is the week budget of a Claim call when none is given.
	DefaultClaimWeeks = 50
)

var (
	errNilState = errors.New("rebase: state not configured")
	stateKey    = []byte("rebase/state")
)

func weekKey(week uint64) []byte {
	return strconv.AppendUint([]byte("rebase/week/"), week, 10)
}

func cursorKey(id uint64) []byte {
	return strconv.AppendUint([]byte("rebase/cursor/"), id, 10)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type tokenLedger interface {
	BalanceOf(symbol string, addr [20]byte) (*big.Int, error)
	Approve(symbol string, owner, spender [20]byte, amount *big.Int) error
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// Escrow is the vote-escrow surface the distributor reads history from and
// compounds into.
type Escrow interface {
	Custody() [20]byte
	Position(id uint64) (*votingescrow.Position, error)
	Checkpoints(id uint64) ([]*votingescrow.Point, error)
	VotingPowerOf(id uint64, ts uint64) (*big.Int, error)
	TotalVotingPowerAt(ts uint64) (*big.Int, error)
	DepositFor(payer [20]byte, id uint64, extra *big.Int) error
}

// State tracks how much of the distributor's balance has been booked.
type State struct {
	StartTime     uint64
	LastTokenTime uint64
	LastBalance   *big.Int
}

// Distributor pays the locker rebase. Growth received from the minter is
// booked into weekly buckets and each position claims its share of every
// completed week in proportion to its voting power at the week start.
type Distributor struct {
	state   engineState
	tokens  tokenLedger
	escrow  Escrow
	token   string
	week    uint64
	address [20]byte
	nowFn   func() int64
	emitter events.Emitter
}

// Address is the distributor's custody account.
func Address() [20]byte { return crypto.ModuleAddress("rebase") }

// New creates a distributor paying token with weeks of length week.
func New(st engineState, tokens tokenLedger, escrow Escrow, token string, week uint64) *Distributor {
	if week == 0 {
		week = votingescrow.Week
	}
	return &Distributor{
		state:   st,
		tokens:  tokens,
		escrow:  escrow,
		token:   token,
		week:    week,
		address: Address(),
		nowFn:   func() int64 { return time.Now().Unix() },
		emitter: events.NoopEmitter{},
	}
}

// SetNowFunc overrides the clock.
func (d *Distributor) SetNowFunc(now func() int64) {
	if now == nil {
		d.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	d.nowFn = now
}

// SetEmitter configures the event sink.
func (d *Distributor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		d.emitter = events.NoopEmitter{}
		return
	}
	d.emitter = emitter
}

// Address returns the distributor custody account.
func (d *Distributor) Address() [20]byte { return d.address }

func (d *Distributor) now() uint64 {
	ts := d.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (d *Distributor) floor(ts uint64) uint64 { return ts / d.week * d.week }

// State returns the booking state.
func (d *Distributor) State() (*State, error) {
	if d == nil || d.state == nil {
		return nil, errNilState
	}
	st := &State{LastBalance: new(big.Int)}
	if _, err := d.state.KVGet(stateKey, st); err != nil {
		return nil, err
	}
	if st.LastBalance == nil {
		st.LastBalance = new(big.Int)
	}
	return st, nil
}

// TokensPerWeek returns the rebase booked for the week starting at week.
func (d *Distributor) TokensPerWeek(week uint64) (*big.Int, error) {
	if d == nil || d.state == nil {
		return nil, errNilState
	}
	out := new(big.Int)
	if _, err := d.state.KVGet(weekKey(week), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Distributor) addToWeek(week uint64, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	current, err := d.TokensPerWeek(week)
	if err != nil {
		return err
	}
	if err := d.state.KVPut(weekKey(week), current.Add(current, amount)); err != nil {
		return err
	}
	d.emitter.Emit(events.RebaseCheckpoint{Week: week, Amount: new(big.Int).Set(amount)})
	return nil
}

// CheckpointToken books tokens received since the last call, spreading them
// over the elapsed weeks in proportion to time.
func (d *Distributor) CheckpointToken() error {
	st, err := d.State()
	if err != nil {
		return err
	}
	now := d.now()
	if st.StartTime == 0 {
		st.StartTime = d.floor(now)
		st.LastTokenTime = st.StartTime
	}
	balance, err := d.tokens.BalanceOf(d.token, d.address)
	if err != nil {
		return err
	}
	toDistribute := new(big.Int).Sub(balance, st.LastBalance)
	if toDistribute.Sign() < 0 {
		return fmt.Errorf("rebase: balance %s below booked %s", balance, st.LastBalance)
	}
	t := st.LastTokenTime
	since := now - t
	thisWeek := d.floor(t)
	for i := 0; i < checkpointWeeks; i++ {
		nextWeek := thisWeek + d.week
		end := nextWeek
		if now < nextWeek {
			end = now
		}
		share := new(big.Int)
		if since == 0 {
			if end == t {
				share.Set(toDistribute)
			}
		} else {
			share.Mul(toDistribute, new(big.Int).SetUint64(end-t))
			share.Quo(share, new(big.Int).SetUint64(since))
		}
		if err := d.addToWeek(thisWeek, share); err != nil {
			return err
		}
		if now < nextWeek {
			break
		}
		t = nextWeek
		thisWeek = nextWeek
	}
	st.LastTokenTime = now
	st.LastBalance = balance
	return d.state.KVPut(stateKey, st)
}

// Cursor returns the first week not yet claimed by position id.
func (d *Distributor) Cursor(id uint64) (uint64, error) {
	st, err := d.State()
	if err != nil {
		return 0, err
	}
	return d.cursor(st, id)
}

func (d *Distributor) cursor(st *State, id uint64) (uint64, error) {
	var cursor uint64
	if _, err := d.state.KVGet(cursorKey(id), &cursor); err != nil {
		return 0, err
	}
	if cursor != 0 {
		return cursor, nil
	}
	points, err := d.escrow.Checkpoints(id)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}
	cursor = (points[0].Timestamp + d.week - 1) / d.week * d.week
	if cursor < st.StartTime {
		cursor = st.StartTime
	}
	return cursor, nil
}

// tally sums the rebase owed to id over at most maxWeeks completed weeks and
// returns it with the cursor to resume from.
func (d *Distributor) tally(st *State, id uint64, maxWeeks int) (*big.Int, uint64, error) {
	owed := new(big.Int)
	cursor, err := d.cursor(st, id)
	if err != nil || cursor == 0 {
		return owed, cursor, err
	}
	if maxWeeks <= 0 {
		maxWeeks = DefaultClaimWeeks
	}
	lastWeek := d.floor(st.LastTokenTime)
	for i := 0; i < maxWeeks && cursor < lastWeek; i++ {
		tokens, err := d.TokensPerWeek(cursor)
		if err != nil {
			return nil, 0, err
		}
		if tokens.Sign() > 0 {
			balance, err := d.escrow.VotingPowerOf(id, cursor)
			if err != nil {
				return nil, 0, err
			}
			supply, err := d.escrow.TotalVotingPowerAt(cursor)
			if err != nil {
				return nil, 0, err
			}
			if balance.Sign() > 0 && supply.Sign() > 0 {
				share := new(big.Int).Mul(balance, tokens)
				owed.Add(owed, share.Quo(share, supply))
			}
		}
		cursor += d.week
	}
	return owed, cursor, nil
}

// Claimable returns what a Claim of id with maxWeeks would pay now.
func (d *Distributor) Claimable(id uint64, maxWeeks int) (*big.Int, error) {
	st, err := d.State()
	if err != nil {
		return nil, err
	}
	owed, _, err := d.tally(st, id, maxWeeks)
	return owed, err
}

// Claim pays position id its rebase for up to maxWeeks completed weeks. A
// live lock is compounded; an expired one is paid to its owner. The week
// cursor persists so repeated calls resume where the last stopped.
func (d *Distributor) Claim(id uint64, maxWeeks int) (*big.Int, error) {
	st, err := d.State()
	if err != nil {
		return nil, err
	}
	pos, err := d.escrow.Position(id)
	if err != nil {
		return nil, err
	}
	if pos.Burned() {
		return nil, fmt.Errorf("rebase: position %d is closed", id)
	}
	owed, cursor, err := d.tally(st, id, maxWeeks)
	if err != nil {
		return nil, err
	}
	if cursor != 0 {
		if err := d.state.KVPut(cursorKey(id), cursor); err != nil {
			return nil, err
		}
	}
	if owed.Sign() == 0 {
		return owed, nil
	}
	if pos.End > d.now() {
		if err := d.tokens.Approve(d.token, d.address, d.escrow.Custody(), owed); err != nil {
			return nil, err
		}
		if err := d.escrow.DepositFor(d.address, id, owed); err != nil {
			return nil, err
		}
	} else if err := d.tokens.Transfer(d.token, d.address, pos.Owner, owed); err != nil {
		return nil, err
	}
	st.LastBalance.Sub(st.LastBalance, owed)
	if err := d.state.KVPut(stateKey, st); err != nil {
		return nil, err
	}
	d.emitter.Emit(events.RebaseClaimed{PositionID: id, Amount: new(big.Int).Set(owed), Cursor: cursor})
	return owed, nil
}
