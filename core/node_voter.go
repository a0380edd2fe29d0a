package core

import (
	"fmt"
	"math/big"

	coreerrors "vedex/core/errors"
	"vedex/native/accrual"
	"vedex/native/pool"
	"vedex/native/voter"
)

// GaugeView summarises a gauge for queries.
type GaugeView struct {
	Record      *voter.GaugeRecord
	Weight      *big.Int
	Claimable   *big.Int
	TotalStaked *big.Int
	BribeWeight *big.Int
}

func (n *Node) CreateGauge(caller [20]byte, id pool.ID) (*voter.GaugeRecord, error) {
	var rec *voter.GaugeRecord
	err := n.exec(ModuleVoter, "create_gauge", func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		var err error
		rec, err = n.voter.CreateGauge(id)
		return err
	})
	return rec, err
}

func (n *Node) Vote(caller [20]byte, id uint64, pools []pool.ID, weights []*big.Int) error {
	return n.exec(ModuleVoter, "vote", func() error {
		return n.voter.Vote(caller, id, pools, weights)
	})
}

func (n *Node) Reset(caller [20]byte, id uint64) error {
	return n.exec(ModuleVoter, "reset", func() error {
		return n.voter.Reset(caller, id)
	})
}

func (n *Node) Poke(id uint64) error {
	return n.exec(ModuleVoter, "poke", func() error {
		return n.voter.Poke(id)
	})
}

// NotifyVoter funds the voter pot from caller outside the minter schedule.
func (n *Node) NotifyVoter(caller [20]byte, amount *big.Int) error {
	return n.exec(ModuleVoter, "notify_reward_amount", func() error {
		return n.voter.NotifyRewardAmount(caller, amount)
	})
}

func (n *Node) UpdateAll() error {
	return n.exec(ModuleVoter, "update_all", n.voter.UpdateAll)
}

func (n *Node) UpdateFor(pools []pool.ID) error {
	return n.exec(ModuleVoter, "update_for", func() error {
		return n.voter.UpdateFor(pools)
	})
}

func (n *Node) Distro() error {
	return n.exec(ModuleVoter, "distro", n.voter.Distro)
}

func (n *Node) DistributeFor(pools []pool.ID) error {
	return n.exec(ModuleVoter, "distribute_for", func() error {
		return n.voter.DistributeFor(pools)
	})
}

func (n *Node) DistributeFees(pools []pool.ID) error {
	return n.exec(ModuleVoter, "distribute_fees", func() error {
		return n.voter.DistributeFees(pools)
	})
}

func (n *Node) ClaimRewards(caller [20]byte, pools []pool.ID, tokens []string) (map[string]*big.Int, error) {
	var paid map[string]*big.Int
	err := n.exec(ModuleGauge, "claim_rewards", func() error {
		var err error
		paid, err = n.voter.ClaimRewards(caller, pools, tokens)
		return err
	})
	return paid, err
}

func (n *Node) ClaimBribes(caller [20]byte, id uint64, pools []pool.ID, tokens []string) (map[string]*big.Int, error) {
	var paid map[string]*big.Int
	err := n.exec(ModuleBribe, "claim_bribes", func() error {
		var err error
		paid, err = n.voter.ClaimBribes(caller, id, pools, tokens)
		return err
	})
	return paid, err
}

func (n *Node) GaugeDeposit(caller [20]byte, id pool.ID, amount *big.Int, positionID uint64) error {
	return n.exec(ModuleGauge, "deposit", func() error {
		g, err := n.voter.Gauge(id)
		if err != nil {
			return err
		}
		return g.Deposit(caller, amount, positionID)
	})
}

func (n *Node) GaugeWithdraw(caller [20]byte, id pool.ID, amount *big.Int) error {
	return n.exec(ModuleGauge, "withdraw", func() error {
		g, err := n.voter.Gauge(id)
		if err != nil {
			return err
		}
		return g.Withdraw(caller, amount)
	})
}

// GaugeNotify funds an extra reward token on a gauge. The emission token
// only arrives through the voter.
func (n *Node) GaugeNotify(funder [20]byte, id pool.ID, token string, amount *big.Int) error {
	return n.exec(ModuleGauge, "notify_reward_amount", func() error {
		g, err := n.voter.Gauge(id)
		if err != nil {
			return err
		}
		return g.NotifyRewardAmount(funder, token, amount)
	})
}

func (n *Node) BribeNotify(funder [20]byte, id pool.ID, token string, amount *big.Int) error {
	return n.exec(ModuleBribe, "notify_reward_amount", func() error {
		b, err := n.voter.Bribe(id)
		if err != nil {
			return err
		}
		return b.NotifyRewardAmount(funder, token, amount)
	})
}

// BatchAdvance moves the gauge or bribe accumulator of token for pool id by at
// most maxSteps steps.
func (n *Node) BatchAdvance(target string, id pool.ID, token string, maxSteps int) (*accrual.Cursor, error) {
	var cursor *accrual.Cursor
	module := ModuleGauge
	if target == ModuleBribe {
		module = ModuleBribe
	}
	err := n.exec(module, "batch_advance", func() error {
		rewards, err := n.rewardsFor(target, id)
		if err != nil {
			return err
		}
		cursor, err = rewards.BatchAdvance(token, maxSteps)
		return err
	})
	return cursor, err
}

func (n *Node) rewardsFor(target string, id pool.ID) (*accrual.Engine, error) {
	switch target {
	case ModuleGauge, "":
		g, err := n.voter.Gauge(id)
		if err != nil {
			return nil, err
		}
		return g.Rewards(), nil
	case ModuleBribe:
		b, err := n.voter.Bribe(id)
		if err != nil {
			return nil, err
		}
		return b.Rewards(), nil
	default:
		return nil, fmt.Errorf("%w: unknown reward target %q", coreerrors.ErrInvalidAmount, target)
	}
}

// GaugeEarned returns account's pending gauge reward in token.
func (n *Node) GaugeEarned(id pool.ID, token string, account [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		g, err := n.voter.Gauge(id)
		if err != nil {
			return err
		}
		out, err = g.Earned(token, account)
		return err
	})
	return out, err
}

// GaugeBalance returns account's stake in the gauge of pool id.
func (n *Node) GaugeBalance(id pool.ID, account [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		g, err := n.voter.Gauge(id)
		if err != nil {
			return err
		}
		out, err = g.BalanceOf(account)
		return err
	})
	return out, err
}

// BribeEarned returns positionID's pending incentive in token.
func (n *Node) BribeEarned(id pool.ID, token string, positionID uint64) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		b, err := n.voter.Bribe(id)
		if err != nil {
			return err
		}
		out, err = b.Earned(token, positionID)
		return err
	})
	return out, err
}

// RewardRate returns the per-second rate of token on the gauge or bribe of
// pool id.
func (n *Node) RewardRate(target string, id pool.ID, token string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		rewards, err := n.rewardsFor(target, id)
		if err != nil {
			return err
		}
		out, err = rewards.RewardRate(token)
		return err
	})
	return out, err
}

// RewardTokens lists the reward tokens of the gauge or bribe of pool id.
func (n *Node) RewardTokens(target string, id pool.ID) ([]string, error) {
	var out []string
	err := n.view(func() error {
		rewards, err := n.rewardsFor(target, id)
		if err != nil {
			return err
		}
		out, err = rewards.RewardTokens()
		return err
	})
	return out, err
}

// Gauge summarises the gauge of pool id.
func (n *Node) Gauge(id pool.ID) (*GaugeView, error) {
	out := &GaugeView{}
	err := n.view(func() error {
		var err error
		if out.Record, err = n.voter.GaugeFor(id); err != nil {
			return err
		}
		if out.Weight, err = n.voter.PoolWeight(id); err != nil {
			return err
		}
		if out.Claimable, err = n.voter.Claimable(id); err != nil {
			return err
		}
		g, err := n.voter.Gauge(id)
		if err != nil {
			return err
		}
		if out.TotalStaked, err = g.TotalSupply(); err != nil {
			return err
		}
		b, err := n.voter.Bribe(id)
		if err != nil {
			return err
		}
		out.BribeWeight, err = b.TotalSupply()
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Gauges lists every pool with a gauge.
func (n *Node) Gauges() ([]pool.ID, error) {
	var out []pool.ID
	err := n.view(func() error {
		var err error
		out, err = n.voter.Pools()
		return err
	})
	return out, err
}

// Votes returns the ballot of positionID.
func (n *Node) Votes(positionID uint64) (*voter.Ballot, error) {
	var out *voter.Ballot
	err := n.view(func() error {
		var err error
		out, err = n.voter.Votes(positionID)
		return err
	})
	return out, err
}

// UsedWeight returns the weight positionID placed on pool id.
func (n *Node) UsedWeight(positionID uint64, id pool.ID) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.voter.UsedWeight(positionID, id)
		return err
	})
	return out, err
}

// TotalWeight returns the weight placed across all pools.
func (n *Node) TotalWeight() (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.voter.TotalWeight()
		return err
	})
	return out, err
}

// Claimable returns the emission snapshotted for pool id.
func (n *Node) Claimable(id pool.ID) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.voter.Claimable(id)
		return err
	})
	return out, err
}
