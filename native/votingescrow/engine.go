package votingescrow

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
	errNilState  = errors.New("votingescrow engine: state not configured")
	errNilTokens = errors.New("votingescrow engine: token ledger not configured")
	errBadParams = errors.New("votingescrow engine: invalid params")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
}

type tokenLedger interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error
}

// Engine is the vote-escrow ledger. It custodies locked tokens, tracks lock
// positions and keeps checkpointed voting-power history for every position
// and for the total.
type Engine struct {
	state   engineState
	tokens  tokenLedger
	emitter events.Emitter
	nowFn   func() int64
	params  Params
	custody [20]byte
}

// NewEngine builds an escrow ledger over st. Tokens are pulled from and paid
// to accounts through tokens.
func NewEngine(st engineState, tokens tokenLedger, params Params) (*Engine, error) {
	if params.Epoch == 0 || params.MaxLock < params.Epoch || params.MinLock > params.MaxLock || params.Token == "" {
		return nil, fmt.Errorf("%w: %+v", errBadParams, params)
	}
	return &Engine{
		state:   st,
		tokens:  tokens,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		params:  params,
		custody: crypto.ModuleAddress("votingescrow"),
	}, nil
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Params returns the lock parameters.
func (e *Engine) Params() Params { return e.params }

// Custody returns the account holding every locked token.
func (e *Engine) Custody() [20]byte { return e.custody }

// Token returns the symbol of the escrowed token.
func (e *Engine) Token() string { return e.params.Token }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// Now returns the engine clock as used for lock arithmetic.
func (e *Engine) Now() uint64 { return e.now() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) floorEpoch(ts uint64) uint64 {
	return ts / e.params.Epoch * e.params.Epoch
}

// lockLine returns the slope and bias of a lock observed at ts. Expired or
// empty locks have no power.
func (e *Engine) lockLine(amount *big.Int, end, ts uint64) (*big.Int, *big.Int) {
	if amount == nil || amount.Sign() <= 0 || end <= ts {
		return new(big.Int), new(big.Int)
	}
	slope := new(big.Int).Quo(amount, new(big.Int).SetUint64(e.params.MaxLock))
	bias := new(big.Int).Mul(slope, new(big.Int).SetUint64(end-ts))
	return slope, bias
}

// checkpoint records the transition of position id from old to next at the
// current time, bringing the global line up to date first.
func (e *Engine) checkpoint(id uint64, oldAmount *big.Int, oldEnd uint64, newAmount *big.Int, newEnd uint64) error {
	now := e.now()
	oldSlope, oldBias := e.lockLine(oldAmount, oldEnd, now)
	newSlope, newBias := e.lockLine(newAmount, newEnd, now)

	global := e.globalSeries()
	last, err := global.last()
	if err != nil {
		return err
	}
	if last == nil {
		last = &Point{Timestamp: now, Bias: new(big.Int), Slope: new(big.Int)}
	}
	if now < last.Timestamp {
		return fmt.Errorf("votingescrow: clock %d behind last checkpoint %d", now, last.Timestamp)
	}
	current, err := e.walkGlobal(last, now, global.push)
	if err != nil {
		return err
	}
	current.Slope.Add(current.Slope, new(big.Int).Sub(newSlope, oldSlope))
	current.Bias.Add(current.Bias, new(big.Int).Sub(newBias, oldBias))
	if current.Slope.Sign() < 0 {
		current.Slope.SetInt64(0)
	}
	if current.Bias.Sign() < 0 {
		current.Bias.SetInt64(0)
	}
	if err := global.push(current); err != nil {
		return err
	}

	if oldEnd > now && oldSlope.Sign() > 0 {
		if err := e.addSlopeChange(oldEnd, new(big.Int).Neg(oldSlope)); err != nil {
			return err
		}
	}
	if newEnd > now && newSlope.Sign() > 0 {
		if err := e.addSlopeChange(newEnd, newSlope); err != nil {
			return err
		}
	}
	return e.positionSeries(id).push(&Point{Timestamp: now, Bias: newBias, Slope: newSlope})
}

func (e *Engine) loadPosition(id uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pos := new(Position)
	ok, err := e.state.KVGet(positionKey(id), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", coreerrors.ErrPositionNotFound, id)
	}
	if pos.Amount == nil {
		pos.Amount = new(big.Int)
	}
	return pos, nil
}

// livePosition loads a position that has not been burned.
func (e *Engine) livePosition(id uint64) (*Position, error) {
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.Burned() {
		return nil, fmt.Errorf("%w: %d burned", coreerrors.ErrPositionNotFound, id)
	}
	return pos, nil
}

func (e *Engine) ownedPosition(caller [20]byte, id uint64) (*Position, error) {
	pos, err := e.livePosition(id)
	if err != nil {
		return nil, err
	}
	if pos.Owner != caller {
		return nil, fmt.Errorf("%w: position %d", coreerrors.ErrNotOwner, id)
	}
	return pos, nil
}

func (e *Engine) storePosition(pos *Position) error {
	return e.state.KVPut(positionKey(pos.ID), pos)
}

func (e *Engine) lockedTotal() (*big.Int, error) {
	total := new(big.Int)
	if _, err := e.state.KVGet(lockedTotalKey, total); err != nil {
		return nil, err
	}
	return total, nil
}

func (e *Engine) adjustLocked(delta *big.Int) error {
	total, err := e.lockedTotal()
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		return fmt.Errorf("votingescrow: locked total underflow")
	}
	return e.state.KVPut(lockedTotalKey, total)
}

func (e *Engine) indexOwner(owner [20]byte, id uint64, add bool) error {
	var ids []uint64
	if err := e.state.KVGetList(ownerIndexKey(owner), &ids); err != nil {
		return err
	}
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	if add {
		filtered = append(filtered, id)
	}
	return e.state.KVPut(ownerIndexKey(owner), filtered)
}

// CreateLock locks amount of the escrowed token from caller for duration
// seconds and returns the new position id.
func (e *Engine) CreateLock(caller [20]byte, amount *big.Int, duration uint64) (uint64, error) {
	return e.CreateLockFor(caller, caller, amount, duration)
}

// CreateLockFor locks amount pulled from payer into a new position owned by
// recipient. The duration is clamped to [MinLock, MaxLock] and the end is
// floored to the epoch.
func (e *Engine) CreateLockFor(payer, recipient [20]byte, amount *big.Int, duration uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if e.tokens == nil {
		return 0, errNilTokens
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, coreerrors.ErrInvalidAmount
	}
	if duration == 0 {
		return 0, coreerrors.ErrInvalidDuration
	}
	if recipient == ([20]byte{}) {
		return 0, fmt.Errorf("%w: zero recipient", coreerrors.ErrNotOwner)
	}
	if duration < e.params.MinLock {
		duration = e.params.MinLock
	}
	if duration > e.params.MaxLock {
		duration = e.params.MaxLock
	}
	now := e.now()
	end := e.floorEpoch(now + duration)
	if end <= now {
		return 0, fmt.Errorf("%w: lock would end at %d", coreerrors.ErrInvalidDuration, end)
	}

	var id uint64
	if _, err := e.state.KVGet(nextIDKey, &id); err != nil {
		return 0, err
	}
	id++
	if err := e.state.KVPut(nextIDKey, id); err != nil {
		return 0, err
	}
	if err := e.tokens.TransferFrom(e.params.Token, e.custody, payer, e.custody, amount); err != nil {
		return 0, err
	}
	pos := &Position{ID: id, Owner: recipient, Amount: new(big.Int).Set(amount), End: end}
	if err := e.storePosition(pos); err != nil {
		return 0, err
	}
	if err := e.indexOwner(recipient, id, true); err != nil {
		return 0, err
	}
	if err := e.adjustLocked(amount); err != nil {
		return 0, err
	}
	if err := e.checkpoint(id, nil, 0, pos.Amount, end); err != nil {
		return 0, err
	}
	e.emit(events.LockCreated{ID: id, Owner: recipient, Payer: payer, Amount: new(big.Int).Set(amount), End: end})
	return id, nil
}

// IncreaseAmount adds extra tokens from the owner to a live lock without
// changing its end.
func (e *Engine) IncreaseAmount(caller [20]byte, id uint64, extra *big.Int) error {
	if _, err := e.ownedPosition(caller, id); err != nil {
		return err
	}
	return e.DepositFor(caller, id, extra)
}

// DepositFor adds extra tokens pulled from payer to any live lock.
func (e *Engine) DepositFor(payer [20]byte, id uint64, extra *big.Int) error {
	if extra == nil || extra.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	pos, err := e.livePosition(id)
	if err != nil {
		return err
	}
	if e.tokens == nil {
		return errNilTokens
	}
	if pos.End <= e.now() {
		return fmt.Errorf("%w: position %d ended at %d", coreerrors.ErrLockExpired, id, pos.End)
	}
	if err := e.tokens.TransferFrom(e.params.Token, e.custody, payer, e.custody, extra); err != nil {
		return err
	}
	oldAmount := new(big.Int).Set(pos.Amount)
	pos.Amount.Add(pos.Amount, extra)
	if err := e.storePosition(pos); err != nil {
		return err
	}
	if err := e.adjustLocked(extra); err != nil {
		return err
	}
	if err := e.checkpoint(id, oldAmount, pos.End, pos.Amount, pos.End); err != nil {
		return err
	}
	e.emit(events.LockIncreased{ID: id, Payer: payer, Added: new(big.Int).Set(extra), Amount: new(big.Int).Set(pos.Amount)})
	return nil
}

// IncreaseDuration moves the end of a live lock to now+duration floored to
// the epoch. The new end must lie beyond the current end and within MaxLock.
func (e *Engine) IncreaseDuration(caller [20]byte, id uint64, duration uint64) error {
	pos, err := e.ownedPosition(caller, id)
	if err != nil {
		return err
	}
	now := e.now()
	if pos.End <= now {
		return fmt.Errorf("%w: position %d ended at %d", coreerrors.ErrLockExpired, id, pos.End)
	}
	if duration == 0 || duration > e.params.MaxLock {
		return fmt.Errorf("%w: %d", coreerrors.ErrInvalidDuration, duration)
	}
	newEnd := e.floorEpoch(now + duration)
	if newEnd <= pos.End {
		return fmt.Errorf("%w: new end %d does not extend %d", coreerrors.ErrInvalidDuration, newEnd, pos.End)
	}
	oldEnd := pos.End
	pos.End = newEnd
	if err := e.storePosition(pos); err != nil {
		return err
	}
	if err := e.checkpoint(id, pos.Amount, oldEnd, pos.Amount, newEnd); err != nil {
		return err
	}
	e.emit(events.LockExtended{ID: id, OldEnd: oldEnd, NewEnd: newEnd})
	return nil
}

// Merge folds position from into position into. Both must belong to caller.
// The merged lock holds the summed amount and the later end; from is burned.
func (e *Engine) Merge(caller [20]byte, from, into uint64) error {
	if from == into {
		return coreerrors.ErrSamePosition
	}
	src, err := e.ownedPosition(caller, from)
	if err != nil {
		return err
	}
	dst, err := e.ownedPosition(caller, into)
	if err != nil {
		return err
	}
	if src.InUse() {
		return fmt.Errorf("%w: position %d", coreerrors.ErrPositionInUse, from)
	}
	end := dst.End
	if src.End > end {
		end = src.End
	}
	moved := new(big.Int).Set(src.Amount)
	srcEnd := src.End
	if err := e.burn(src); err != nil {
		return err
	}
	if err := e.checkpoint(from, moved, srcEnd, nil, 0); err != nil {
		return err
	}

	oldAmount, oldEnd := new(big.Int).Set(dst.Amount), dst.End
	dst.Amount.Add(dst.Amount, moved)
	dst.End = end
	if err := e.storePosition(dst); err != nil {
		return err
	}
	if err := e.checkpoint(into, oldAmount, oldEnd, dst.Amount, dst.End); err != nil {
		return err
	}
	e.emit(events.LockMerged{From: from, Into: into, Amount: new(big.Int).Set(dst.Amount), End: dst.End})
	return nil
}

// Withdraw returns the tokens of an expired lock to its owner and burns the
// position.
func (e *Engine) Withdraw(caller [20]byte, id uint64) (*big.Int, error) {
	pos, err := e.ownedPosition(caller, id)
	if err != nil {
		return nil, err
	}
	if pos.InUse() {
		return nil, fmt.Errorf("%w: position %d", coreerrors.ErrPositionInUse, id)
	}
	if e.now() < pos.End {
		return nil, fmt.Errorf("%w: position %d ends at %d", coreerrors.ErrLockNotExpired, id, pos.End)
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	amount := new(big.Int).Set(pos.Amount)
	end := pos.End
	if err := e.burn(pos); err != nil {
		return nil, err
	}
	if err := e.adjustLocked(new(big.Int).Neg(amount)); err != nil {
		return nil, err
	}
	if err := e.checkpoint(id, amount, end, nil, 0); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(e.params.Token, e.custody, caller, amount); err != nil {
		return nil, err
	}
	e.emit(events.LockWithdrawn{ID: id, Owner: caller, Amount: new(big.Int).Set(amount)})
	return amount, nil
}

func (e *Engine) burn(pos *Position) error {
	owner := pos.Owner
	pos.LastOwner = owner
	pos.Owner = [20]byte{}
	pos.Amount = new(big.Int)
	pos.End = 0
	if err := e.storePosition(pos); err != nil {
		return err
	}
	return e.indexOwner(owner, pos.ID, false)
}

// TransferPosition hands a position that carries no votes or attachments to
// a new owner.
func (e *Engine) TransferPosition(caller, to [20]byte, id uint64) error {
	pos, err := e.ownedPosition(caller, id)
	if err != nil {
		return err
	}
	if to == ([20]byte{}) || to == caller {
		return fmt.Errorf("%w: invalid recipient", coreerrors.ErrNotOwner)
	}
	if pos.InUse() {
		return fmt.Errorf("%w: position %d", coreerrors.ErrPositionInUse, id)
	}
	pos.Owner = to
	if err := e.storePosition(pos); err != nil {
		return err
	}
	if err := e.indexOwner(caller, id, false); err != nil {
		return err
	}
	if err := e.indexOwner(to, id, true); err != nil {
		return err
	}
	e.emit(events.LockTransferred{ID: id, From: caller, To: to})
	return nil
}

// SetVoted flags a position as carrying live votes.
func (e *Engine) SetVoted(id uint64, voted bool) error {
	pos, err := e.livePosition(id)
	if err != nil {
		return err
	}
	pos.Voted = voted
	return e.storePosition(pos)
}

// Attach records that a gauge stake references the position.
func (e *Engine) Attach(id uint64) error {
	pos, err := e.livePosition(id)
	if err != nil {
		return err
	}
	pos.Attachments++
	return e.storePosition(pos)
}

// Detach releases one gauge attachment.
func (e *Engine) Detach(id uint64) error {
	pos, err := e.livePosition(id)
	if err != nil {
		return err
	}
	if pos.Attachments == 0 {
		return fmt.Errorf("votingescrow: position %d has no attachments", id)
	}
	pos.Attachments--
	return e.storePosition(pos)
}

// OwnerOf returns the owner of a live position.
func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	pos, err := e.livePosition(id)
	if err != nil {
		return [20]byte{}, err
	}
	return pos.Owner, nil
}

// ClaimantOf returns who may collect what position id earned: the owner of
// a live position, or the last owner of a burned one.
func (e *Engine) ClaimantOf(id uint64) ([20]byte, error) {
	pos, err := e.loadPosition(id)
	if err != nil {
		return [20]byte{}, err
	}
	if pos.Burned() {
		if pos.LastOwner == ([20]byte{}) {
			return [20]byte{}, fmt.Errorf("%w: %d burned", coreerrors.ErrPositionNotFound, id)
		}
		return pos.LastOwner, nil
	}
	return pos.Owner, nil
}

// Position returns a copy of the stored position, burned or not.
func (e *Engine) Position(id uint64) (*Position, error) {
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// PositionsOf lists the live positions owned by owner.
func (e *Engine) PositionsOf(owner [20]byte) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var ids []uint64
	if err := e.state.KVGetList(ownerIndexKey(owner), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// TotalLocked returns the amount of tokens held in escrow.
func (e *Engine) TotalLocked() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.lockedTotal()
}

// VotingPowerOf returns the voting power of position id at ts, reconstructed
// from the latest checkpoint at or before ts.
func (e *Engine) VotingPowerOf(id uint64, ts uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pt, ok, err := e.positionSeries(id).search(ts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return pt.ValueAt(ts), nil
}

// VotingPower returns the current voting power of position id.
func (e *Engine) VotingPower(id uint64) (*big.Int, error) {
	return e.VotingPowerOf(id, e.now())
}

// TotalVotingPowerAt returns the sum of every position's voting power at ts.
func (e *Engine) TotalVotingPowerAt(ts uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pt, ok, err := e.globalSeries().search(ts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	projected, err := e.walkGlobal(pt, ts, nil)
	if err != nil {
		return nil, err
	}
	return projected.ValueAt(ts), nil
}

// TotalVotingPower returns the current total voting power.
func (e *Engine) TotalVotingPower() (*big.Int, error) {
	return e.TotalVotingPowerAt(e.now())
}
