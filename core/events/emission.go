package events

import (
	"math/big"

	"vedex/core/types"
)

const (
	TypeEmissionMinted   = "minter.emission"
	TypeMinterSeeded     = "minter.initialized"
	TypeRebaseClaimed    = "rebase.claimed"
	TypeRebaseCheckpoint = "rebase.checkpoint"
)

// EmissionMinted is emitted once per advanced epoch.
type EmissionMinted struct {
	Period  uint64
	Weekly  *big.Int
	Growth  *big.Int
	Minted  *big.Int
	Supply  *big.Int
	Clamped bool
}

func (EmissionMinted) EventType() string { return TypeEmissionMinted }

func (e EmissionMinted) Event() *types.Event {
	attrs := map[string]string{
		"period": uintToString(e.Period),
		"weekly": formatAmount(e.Weekly),
		"growth": formatAmount(e.Growth),
		"minted": formatAmount(e.Minted),
		"supply": formatAmount(e.Supply),
	}
	if e.Clamped {
		attrs["clamped"] = "true"
	}
	return &types.Event{Type: TypeEmissionMinted, Attributes: attrs}
}

type MinterInitialized struct {
	Recipients  int
	Minted      *big.Int
	FirstPeriod uint64
}

func (MinterInitialized) EventType() string { return TypeMinterSeeded }

func (e MinterInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeMinterSeeded,
		Attributes: map[string]string{
			"recipients":  uintToString(uint64(e.Recipients)),
			"minted":      formatAmount(e.Minted),
			"firstPeriod": uintToString(e.FirstPeriod),
		},
	}
}

type RebaseCheckpoint struct {
	Week   uint64
	Amount *big.Int
}

func (RebaseCheckpoint) EventType() string { return TypeRebaseCheckpoint }

func (e RebaseCheckpoint) Event() *types.Event {
	return &types.Event{
		Type: TypeRebaseCheckpoint,
		Attributes: map[string]string{
			"week":   uintToString(e.Week),
			"amount": formatAmount(e.Amount),
		},
	}
}

type RebaseClaimed struct {
	PositionID uint64
	Amount     *big.Int
	Cursor     uint64
}

func (RebaseClaimed) EventType() string { return TypeRebaseClaimed }

func (e RebaseClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRebaseClaimed,
		Attributes: map[string]string{
			"position": uintToString(e.PositionID),
			"amount":   formatAmount(e.Amount),
			"cursor":   uintToString(e.Cursor),
		},
	}
}
