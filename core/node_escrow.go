package core

import (
	"math/big"

	"vedex/native/votingescrow"
)

func (n *Node) CreateLock(caller [20]byte, amount *big.Int, duration uint64) (uint64, error) {
	var id uint64
	err := n.exec(ModuleEscrow, "create_lock", func() error {
		var err error
		id, err = n.escrow.CreateLock(caller, amount, duration)
		return err
	})
	return id, err
}

func (n *Node) IncreaseAmount(caller [20]byte, id uint64, extra *big.Int) error {
	return n.exec(ModuleEscrow, "increase_amount", func() error {
		return n.escrow.IncreaseAmount(caller, id, extra)
	})
}

func (n *Node) DepositFor(payer [20]byte, id uint64, extra *big.Int) error {
	return n.exec(ModuleEscrow, "deposit_for", func() error {
		return n.escrow.DepositFor(payer, id, extra)
	})
}

func (n *Node) IncreaseDuration(caller [20]byte, id uint64, duration uint64) error {
	return n.exec(ModuleEscrow, "increase_duration", func() error {
		return n.escrow.IncreaseDuration(caller, id, duration)
	})
}

func (n *Node) Merge(caller [20]byte, from, into uint64) error {
	return n.exec(ModuleEscrow, "merge", func() error {
		return n.escrow.Merge(caller, from, into)
	})
}

// Withdraw releases an expired lock back to its owner.
func (n *Node) Withdraw(caller [20]byte, id uint64) (*big.Int, error) {
	var out *big.Int
	err := n.exec(ModuleEscrow, "withdraw", func() error {
		var err error
		out, err = n.escrow.Withdraw(caller, id)
		return err
	})
	return out, err
}

func (n *Node) TransferPosition(caller, to [20]byte, id uint64) error {
	return n.exec(ModuleEscrow, "transfer_position", func() error {
		return n.escrow.TransferPosition(caller, to, id)
	})
}

// Position returns a lock by id.
func (n *Node) Position(id uint64) (*votingescrow.Position, error) {
	var out *votingescrow.Position
	err := n.view(func() error {
		var err error
		out, err = n.escrow.Position(id)
		return err
	})
	return out, err
}

// PositionsOf lists the locks held by owner.
func (n *Node) PositionsOf(owner [20]byte) ([]uint64, error) {
	var out []uint64
	err := n.view(func() error {
		var err error
		out, err = n.escrow.PositionsOf(owner)
		return err
	})
	return out, err
}

// VotingPowerOf returns the voting power of id at ts, now when ts is zero.
func (n *Node) VotingPowerOf(id uint64, ts uint64) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		if ts == 0 {
			ts = n.escrow.Now()
		}
		var err error
		out, err = n.escrow.VotingPowerOf(id, ts)
		return err
	})
	return out, err
}

// TotalVotingPowerAt returns the total voting power at ts, now when ts is
// zero.
func (n *Node) TotalVotingPowerAt(ts uint64) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		if ts == 0 {
			ts = n.escrow.Now()
		}
		var err error
		out, err = n.escrow.TotalVotingPowerAt(ts)
		return err
	})
	return out, err
}

// Checkpoints returns the voting power history of id.
func (n *Node) Checkpoints(id uint64) ([]*votingescrow.Point, error) {
	var out []*votingescrow.Point
	err := n.view(func() error {
		var err error
		out, err = n.escrow.Checkpoints(id)
		return err
	})
	return out, err
}

// EscrowCustody returns the account that locks pull tokens into.
func (n *Node) EscrowCustody() [20]byte { return n.escrow.Custody() }
