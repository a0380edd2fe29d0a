package events

import (
	"math/big"

	"vedex/core/types"
)

const (
	TypeLockCreated     = "escrow.lock.created"
	TypeLockIncreased   = "escrow.lock.increased"
	TypeLockExtended    = "escrow.lock.extended"
	TypeLockMerged      = "escrow.lock.merged"
	TypeLockWithdrawn   = "escrow.lock.withdrawn"
	TypeLockTransferred = "escrow.lock.transferred"
)

// LockCreated is emitted when a new escrow position is opened.
type LockCreated struct {
	ID     uint64
	Owner  [20]byte
	Payer  [20]byte
	Amount *big.Int
	End    uint64
}

func (LockCreated) EventType() string { return TypeLockCreated }

func (e LockCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLockCreated,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"owner":  accountString(e.Owner),
			"payer":  accountString(e.Payer),
			"amount": formatAmount(e.Amount),
			"end":    uintToString(e.End),
		},
	}
}

// LockIncreased is emitted when tokens are added to a live position.
type LockIncreased struct {
	ID     uint64
	Payer  [20]byte
	Added  *big.Int
	Amount *big.Int
}

func (LockIncreased) EventType() string { return TypeLockIncreased }

func (e LockIncreased) Event() *types.Event {
	return &types.Event{
		Type: TypeLockIncreased,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"payer":  accountString(e.Payer),
			"added":  formatAmount(e.Added),
			"amount": formatAmount(e.Amount),
		},
	}
}

type LockExtended struct {
	ID     uint64
	OldEnd uint64
	NewEnd uint64
}

func (LockExtended) EventType() string { return TypeLockExtended }

func (e LockExtended) Event() *types.Event {
	return &types.Event{
		Type: TypeLockExtended,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"oldEnd": uintToString(e.OldEnd),
			"newEnd": uintToString(e.NewEnd),
		},
	}
}

type LockMerged struct {
	From   uint64
	Into   uint64
	Amount *big.Int
	End    uint64
}

func (LockMerged) EventType() string { return TypeLockMerged }

func (e LockMerged) Event() *types.Event {
	return &types.Event{
		Type: TypeLockMerged,
		Attributes: map[string]string{
			"from":   uintToString(e.From),
			"into":   uintToString(e.Into),
			"amount": formatAmount(e.Amount),
			"end":    uintToString(e.End),
		},
	}
}

type LockWithdrawn struct {
	ID     uint64
	Owner  [20]byte
	Amount *big.Int
}

func (LockWithdrawn) EventType() string { return TypeLockWithdrawn }

func (e LockWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeLockWithdrawn,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"owner":  accountString(e.Owner),
			"amount": formatAmount(e.Amount),
		},
	}
}

type LockTransferred struct {
	ID   uint64
	From [20]byte
	To   [20]byte
}

func (LockTransferred) EventType() string { return TypeLockTransferred }

func (e LockTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeLockTransferred,
		Attributes: map[string]string{
			"id":   uintToString(e.ID),
			"from": accountString(e.From),
			"to":   accountString(e.To),
		},
	}
}
