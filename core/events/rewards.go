package events

import (
	"math/big"

	"vedex/core/types"
)

const (
	TypeRewardNotified = "rewards.notified"
	TypeRewardPaid     = "rewards.paid"
	TypeStakeDeposited = "gauge.deposit"
	TypeStakeWithdrawn = "gauge.withdraw"
	TypeFeesClaimed    = "gauge.fees.claimed"
)

// RewardNotified is emitted when a gauge or bribe is funded.
type RewardNotified struct {
	Source       string
	Funder       [20]byte
	Token        string
	Amount       *big.Int
	Rate         *big.Int
	PeriodFinish uint64
}

func (RewardNotified) EventType() string { return TypeRewardNotified }

func (e RewardNotified) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardNotified,
		Attributes: map[string]string{
			"source":       e.Source,
			"funder":       accountString(e.Funder),
			"token":        e.Token,
			"amount":       formatAmount(e.Amount),
			"rate":         formatAmount(e.Rate),
			"periodFinish": uintToString(e.PeriodFinish),
		},
	}
}

type RewardPaid struct {
	Source    string
	Account   string
	Recipient [20]byte
	Token     string
	Amount    *big.Int
}

func (RewardPaid) EventType() string { return TypeRewardPaid }

func (e RewardPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardPaid,
		Attributes: map[string]string{
			"source":    e.Source,
			"account":   e.Account,
			"recipient": accountString(e.Recipient),
			"token":     e.Token,
			"amount":    formatAmount(e.Amount),
		},
	}
}

type StakeDeposited struct {
	Pool       [20]byte
	Account    [20]byte
	Amount     *big.Int
	PositionID uint64
}

func (StakeDeposited) EventType() string { return TypeStakeDeposited }

func (e StakeDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeDeposited,
		Attributes: map[string]string{
			"pool":     poolString(e.Pool),
			"account":  accountString(e.Account),
			"amount":   formatAmount(e.Amount),
			"position": uintToString(e.PositionID),
		},
	}
}

type StakeWithdrawn struct {
	Pool    [20]byte
	Account [20]byte
	Amount  *big.Int
}

func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeWithdrawn,
		Attributes: map[string]string{
			"pool":    poolString(e.Pool),
			"account": accountString(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

type FeesClaimed struct {
	Pool    [20]byte
	Amount0 *big.Int
	Amount1 *big.Int
}

func (FeesClaimed) EventType() string { return TypeFeesClaimed }

func (e FeesClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesClaimed,
		Attributes: map[string]string{
			"pool":    poolString(e.Pool),
			"amount0": formatAmount(e.Amount0),
			"amount1": formatAmount(e.Amount1),
		},
	}
}
