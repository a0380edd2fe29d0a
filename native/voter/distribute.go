package voter

import (
	"math/big"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/native/pool"
)

// NotifyRewardAmount pulls amount of the reward token from caller into the
// voter's pot. The pot is folded into the global index on the next update,
// pro-rated by the pool weights in force at that time.
func (v *Engine) NotifyRewardAmount(caller [20]byte, amount *big.Int) error {
	if err := v.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	if err := v.deps.Tokens.TransferFrom(v.deps.RewardToken, v.address, caller, v.address, amount); err != nil {
		return err
	}
	if _, err := v.addBig(potKey, amount); err != nil {
		return err
	}
	v.deps.Emitter.Emit(events.EmissionReceived{From: caller, Amount: new(big.Int).Set(amount)})
	return nil
}

// fold moves the pot into the per-weight index. Rounding dust stays in the
// pot; nothing folds while no weight is placed.
func (v *Engine) fold() error {
	pot, err := v.loadBig(potKey)
	if err != nil {
		return err
	}
	if pot.Sign() == 0 {
		return nil
	}
	total, err := v.loadBig(totalWeightKey)
	if err != nil {
		return err
	}
	if total.Sign() == 0 {
		return nil
	}
	ratio := new(big.Int).Mul(pot, precision)
	ratio.Quo(ratio, total)
	if ratio.Sign() == 0 {
		return nil
	}
	index, err := v.loadBig(indexKey)
	if err != nil {
		return err
	}
	if err := v.deps.State.KVPut(indexKey, index.Add(index, ratio)); err != nil {
		return err
	}
	used := new(big.Int).Mul(ratio, total)
	used.Quo(used, precision)
	return v.deps.State.KVPut(potKey, pot.Sub(pot, used))
}

// updateFor settles the claimable share of pool id against the index.
func (v *Engine) updateFor(id pool.ID) error {
	if err := v.fold(); err != nil {
		return err
	}
	index, err := v.loadBig(indexKey)
	if err != nil {
		return err
	}
	supplyIndex, err := v.loadBig(supplyIndexKey(id))
	if err != nil {
		return err
	}
	weight, err := v.loadBig(weightKey(id))
	if err != nil {
		return err
	}
	if weight.Sign() > 0 {
		delta := new(big.Int).Sub(index, supplyIndex)
		if delta.Sign() > 0 {
			share := delta.Mul(delta, weight)
			share.Quo(share, precision)
			if _, err := v.addBig(claimableKey(id), share); err != nil {
				return err
			}
		}
	}
	return v.deps.State.KVPut(supplyIndexKey(id), index)
}

// UpdateAll snapshots the claimable emission of every pool.
func (v *Engine) UpdateAll() error {
	pools, err := v.Pools()
	if err != nil {
		return err
	}
	return v.UpdateFor(pools)
}

// UpdateFor snapshots the claimable emission of the given pools.
func (v *Engine) UpdateFor(pools []pool.ID) error {
	if err := v.ready(); err != nil {
		return err
	}
	for _, id := range pools {
		if _, err := v.GaugeFor(id); err != nil {
			return err
		}
		if err := v.updateFor(id); err != nil {
			return err
		}
	}
	return nil
}

func (v *Engine) tick() error {
	if v.minter == nil {
		return nil
	}
	_, err := v.minter.UpdatePeriod()
	return err
}

// Distro ticks the minter and pushes every pool's claimable emission into its
// gauge.
func (v *Engine) Distro() error {
	if err := v.tick(); err != nil {
		return err
	}
	pools, err := v.Pools()
	if err != nil {
		return err
	}
	return v.distribute(pools)
}

// DistributeFor is Distro restricted to pools.
func (v *Engine) DistributeFor(pools []pool.ID) error {
	if err := v.ready(); err != nil {
		return err
	}
	if err := v.tick(); err != nil {
		return err
	}
	return v.distribute(pools)
}

func (v *Engine) distribute(pools []pool.ID) error {
	for _, id := range pools {
		if _, err := v.distributeOne(id); err != nil {
			return err
		}
	}
	return nil
}

// distributeOne pushes the claimable of pool id once it exceeds what the
// gauge still has to stream and yields a non-zero rate.
func (v *Engine) distributeOne(id pool.ID) (*big.Int, error) {
	if err := v.UpdateFor([]pool.ID{id}); err != nil {
		return nil, err
	}
	claimable, err := v.loadBig(claimableKey(id))
	if err != nil {
		return nil, err
	}
	if claimable.Sign() == 0 {
		return claimable, nil
	}
	g, err := v.Gauge(id)
	if err != nil {
		return nil, err
	}
	token := v.deps.RewardToken
	left, err := g.Left(token)
	if err != nil {
		return nil, err
	}
	duration := new(big.Int).SetUint64(g.Rewards().Config().Duration)
	if claimable.Cmp(left) <= 0 || new(big.Int).Quo(claimable, duration).Sign() == 0 {
		return new(big.Int), nil
	}
	if err := v.deps.State.KVPut(claimableKey(id), new(big.Int)); err != nil {
		return nil, err
	}
	if err := v.deps.Tokens.Approve(token, v.address, g.Address(), claimable); err != nil {
		return nil, err
	}
	if err := g.NotifyRewardAmount(v.address, token, claimable); err != nil {
		return nil, err
	}
	v.deps.Emitter.Emit(events.EmissionDistributed{Pool: id, Gauge: g.Address(), Amount: new(big.Int).Set(claimable)})
	return claimable, nil
}

// DistributeFees sweeps each pool's trading fees through its gauge into the
// paired bribe.
func (v *Engine) DistributeFees(pools []pool.ID) error {
	if err := v.ready(); err != nil {
		return err
	}
	for _, id := range pools {
		g, err := v.Gauge(id)
		if err != nil {
			return err
		}
		if _, _, err := g.ClaimFees(v.bribe(id)); err != nil {
			return err
		}
	}
	return nil
}

// ClaimRewards collects caller's gauge rewards across pools.
func (v *Engine) ClaimRewards(caller [20]byte, pools []pool.ID, tokens []string) (map[string]*big.Int, error) {
	total := make(map[string]*big.Int)
	for _, id := range pools {
		g, err := v.Gauge(id)
		if err != nil {
			return nil, err
		}
		paid, err := g.GetReward(caller, tokens)
		if err != nil {
			return nil, err
		}
		mergePaid(total, paid)
	}
	return total, nil
}

// ClaimBribes collects the incentives earned by positionID across pools.
func (v *Engine) ClaimBribes(caller [20]byte, positionID uint64, pools []pool.ID, tokens []string) (map[string]*big.Int, error) {
	total := make(map[string]*big.Int)
	for _, id := range pools {
		b, err := v.Bribe(id)
		if err != nil {
			return nil, err
		}
		paid, err := b.GetReward(caller, positionID, tokens)
		if err != nil {
			return nil, err
		}
		mergePaid(total, paid)
	}
	return total, nil
}

func mergePaid(total, paid map[string]*big.Int) {
	for tok, amount := range paid {
		if amount == nil {
			continue
		}
		if acc, ok := total[tok]; ok {
			acc.Add(acc, amount)
			continue
		}
		total[tok] = new(big.Int).Set(amount)
	}
}
