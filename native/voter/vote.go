package voter

import (
	"fmt"
	"math/big"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/native/pool"
)

func (v *Engine) requireOwner(caller [20]byte, positionID uint64) error {
	if v.deps.Escrow == nil {
		return fmt.Errorf("voter: escrow not configured")
	}
	owner, err := v.deps.Escrow.OwnerOf(positionID)
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("%w: position %d", coreerrors.ErrNotOwner, positionID)
	}
	return nil
}

func (v *Engine) validateBallot(pools []pool.ID, weights []*big.Int) error {
	if len(pools) == 0 {
		return coreerrors.ErrEmptyVote
	}
	if len(pools) != len(weights) {
		return fmt.Errorf("%w: %d pools, %d weights", coreerrors.ErrArityMismatch, len(pools), len(weights))
	}
	seen := make(map[pool.ID]struct{}, len(pools))
	for i, id := range pools {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", coreerrors.ErrDuplicatePool, id.Hex())
		}
		seen[id] = struct{}{}
		if weights[i] == nil || weights[i].Sign() <= 0 {
			return fmt.Errorf("%w: pool %s", coreerrors.ErrZeroWeight, id.Hex())
		}
		if _, err := v.GaugeFor(id); err != nil {
			return err
		}
	}
	return nil
}

// Vote clears the previous ballot of positionID and splits its current
// voting power across pools in proportion to weights.
func (v *Engine) Vote(caller [20]byte, positionID uint64, pools []pool.ID, weights []*big.Int) error {
	if err := v.ready(); err != nil {
		return err
	}
	if err := v.validateBallot(pools, weights); err != nil {
		return err
	}
	if err := v.requireOwner(caller, positionID); err != nil {
		return err
	}
	if err := v.clear(positionID); err != nil {
		return err
	}
	return v.apply(positionID, pools, weights)
}

// Reset removes every allocation of positionID and frees it for withdrawal.
func (v *Engine) Reset(caller [20]byte, positionID uint64) error {
	if err := v.ready(); err != nil {
		return err
	}
	if err := v.requireOwner(caller, positionID); err != nil {
		return err
	}
	if err := v.clear(positionID); err != nil {
		return err
	}
	if err := v.deps.State.KVPut(ballotKey(positionID), &Ballot{}); err != nil {
		return err
	}
	return v.deps.Escrow.SetVoted(positionID, false)
}

// Poke re-applies the last ballot of positionID against its current voting
// power. Anyone may poke.
func (v *Engine) Poke(positionID uint64) error {
	ballot, err := v.Votes(positionID)
	if err != nil {
		return err
	}
	if len(ballot.Pools) == 0 {
		return nil
	}
	pools := append([]pool.ID(nil), ballot.Pools...)
	weights := make([]*big.Int, len(ballot.Weights))
	for i, w := range ballot.Weights {
		weights[i] = new(big.Int).Set(w)
	}
	if err := v.clear(positionID); err != nil {
		return err
	}
	return v.apply(positionID, pools, weights)
}

// clear withdraws every allocation of positionID from the pools and bribes.
// The ballot's relative weights survive so apply can reuse them.
func (v *Engine) clear(positionID uint64) error {
	ballot, err := v.Votes(positionID)
	if err != nil {
		return err
	}
	removed := new(big.Int)
	for i, id := range ballot.Pools {
		if i >= len(ballot.Used) || ballot.Used[i] == nil || ballot.Used[i].Sign() == 0 {
			continue
		}
		used := ballot.Used[i]
		if err := v.updateFor(id); err != nil {
			return err
		}
		if _, err := v.addBig(weightKey(id), new(big.Int).Neg(used)); err != nil {
			return err
		}
		if err := v.bribe(id).Withdraw(positionID, used); err != nil {
			return err
		}
		removed.Add(removed, used)
		v.deps.Emitter.Emit(events.VoteReset{PositionID: positionID, Pool: id, Weight: new(big.Int).Set(used)})
	}
	if removed.Sign() > 0 {
		if _, err := v.addBig(totalWeightKey, removed.Neg(removed)); err != nil {
			return err
		}
	}
	ballot.Used = nil
	return v.deps.State.KVPut(ballotKey(positionID), ballot)
}

func (v *Engine) apply(positionID uint64, pools []pool.ID, weights []*big.Int) error {
	power, err := v.deps.Escrow.VotingPowerOf(positionID, v.now())
	if err != nil {
		return err
	}
	sum := new(big.Int)
	for _, w := range weights {
		sum.Add(sum, w)
	}
	ballot := &Ballot{Pools: pools, Weights: weights, Used: make([]*big.Int, len(pools))}
	total := new(big.Int)
	for i, id := range pools {
		alloc := new(big.Int).Mul(power, weights[i])
		alloc.Quo(alloc, sum)
		ballot.Used[i] = alloc
		if alloc.Sign() == 0 {
			continue
		}
		if err := v.updateFor(id); err != nil {
			return err
		}
		if _, err := v.addBig(weightKey(id), alloc); err != nil {
			return err
		}
		if err := v.bribe(id).Deposit(positionID, alloc); err != nil {
			return err
		}
		total.Add(total, alloc)
		v.deps.Emitter.Emit(events.Voted{PositionID: positionID, Pool: id, Weight: new(big.Int).Set(alloc)})
	}
	if total.Sign() > 0 {
		if _, err := v.addBig(totalWeightKey, total); err != nil {
			return err
		}
	}
	if err := v.deps.State.KVPut(ballotKey(positionID), ballot); err != nil {
		return err
	}
	return v.deps.Escrow.SetVoted(positionID, total.Sign() > 0)
}
