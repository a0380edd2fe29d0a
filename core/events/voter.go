package events

import (
	"math/big"

	"vedex/core/types"
)

const (
	TypeGaugeCreated     = "voter.gauge.created"
	TypeVoted            = "voter.voted"
	TypeVoteReset        = "voter.reset"
	TypeEmissionReceived = "voter.emission.received"
	TypeEmissionPushed   = "voter.emission.distributed"
)

type GaugeCreated struct {
	Pool  [20]byte
	Gauge [20]byte
	Bribe [20]byte
}

func (GaugeCreated) EventType() string { return TypeGaugeCreated }

func (e GaugeCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeGaugeCreated,
		Attributes: map[string]string{
			"pool":  poolString(e.Pool),
			"gauge": poolString(e.Gauge),
			"bribe": poolString(e.Bribe),
		},
	}
}

// Voted records the weight one position placed on one pool.
type Voted struct {
	PositionID uint64
	Pool       [20]byte
	Weight     *big.Int
}

func (Voted) EventType() string { return TypeVoted }

func (e Voted) Event() *types.Event {
	return &types.Event{
		Type: TypeVoted,
		Attributes: map[string]string{
			"position": uintToString(e.PositionID),
			"pool":     poolString(e.Pool),
			"weight":   formatAmount(e.Weight),
		},
	}
}

// VoteReset records weight removed from a pool when a ballot is cleared.
type VoteReset struct {
	PositionID uint64
	Pool       [20]byte
	Weight     *big.Int
}

func (VoteReset) EventType() string { return TypeVoteReset }

func (e VoteReset) Event() *types.Event {
	return &types.Event{
		Type: TypeVoteReset,
		Attributes: map[string]string{
			"position": uintToString(e.PositionID),
			"pool":     poolString(e.Pool),
			"weight":   formatAmount(e.Weight),
		},
	}
}

type EmissionReceived struct {
	From   [20]byte
	Amount *big.Int
}

func (EmissionReceived) EventType() string { return TypeEmissionReceived }

func (e EmissionReceived) Event() *types.Event {
	return &types.Event{
		Type: TypeEmissionReceived,
		Attributes: map[string]string{
			"from":   accountString(e.From),
			"amount": formatAmount(e.Amount),
		},
	}
}

type EmissionDistributed struct {
	Pool   [20]byte
	Gauge  [20]byte
	Amount *big.Int
}

func (EmissionDistributed) EventType() string { return TypeEmissionPushed }

func (e EmissionDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeEmissionPushed,
		Attributes: map[string]string{
			"pool":   poolString(e.Pool),
			"gauge":  poolString(e.Gauge),
			"amount": formatAmount(e.Amount),
		},
	}
}
