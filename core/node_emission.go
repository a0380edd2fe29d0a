package core

import (
	"math/big"

	"vedex/native/minter"
	"vedex/native/pool"
	"vedex/native/rebase"
	"vedex/native/token"
)

func (n *Node) RegisterToken(caller [20]byte, symbol string, decimals uint8) error {
	return n.exec(ModuleToken, "register", func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		return n.tokens.Register(symbol, decimals, n.opts.Admin)
	})
}

// MintToken mints a non-emission token; caller must be its mint authority.
func (n *Node) MintToken(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	return n.exec(ModuleToken, "mint", func() error {
		return n.tokens.Mint(caller, symbol, to, amount)
	})
}

func (n *Node) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	return n.exec(ModuleToken, "transfer", func() error {
		return n.tokens.Transfer(symbol, from, to, amount)
	})
}

func (n *Node) Approve(symbol string, owner, spender [20]byte, amount *big.Int) error {
	return n.exec(ModuleToken, "approve", func() error {
		return n.tokens.Approve(symbol, owner, spender, amount)
	})
}

// Balance returns addr's balance of symbol.
func (n *Node) Balance(symbol string, addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.tokens.BalanceOf(symbol, addr)
		return err
	})
	return out, err
}

// TokenInfo returns the metadata and supply of symbol.
func (n *Node) TokenInfo(symbol string) (*token.Metadata, *big.Int, error) {
	var meta *token.Metadata
	var supply *big.Int
	err := n.view(func() error {
		var err error
		if meta, err = n.tokens.Metadata(symbol); err != nil {
			return err
		}
		supply, err = n.tokens.TotalSupply(symbol)
		return err
	})
	return meta, supply, err
}

// RegisterPool records a pool whose LP token the admin mints on behalf of the
// external AMM.
func (n *Node) RegisterPool(caller [20]byte, id pool.ID, token0, token1 string, stable bool) (*pool.Pool, error) {
	var out *pool.Pool
	err := n.exec(ModulePool, "register", func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		var err error
		out, err = n.pools.Register(id, token0, token1, stable, n.opts.Admin)
		return err
	})
	return out, err
}

func (n *Node) RecordFees(payer [20]byte, id pool.ID, amount0, amount1 *big.Int) error {
	return n.exec(ModulePool, "record_fees", func() error {
		return n.pools.RecordFees(payer, id, amount0, amount1)
	})
}

// Pool returns a pool record and its unclaimed fees.
func (n *Node) Pool(id pool.ID) (*pool.Pool, *pool.Fees, error) {
	var p *pool.Pool
	var fees *pool.Fees
	err := n.view(func() error {
		var err error
		if p, err = n.pools.Get(id); err != nil {
			return err
		}
		fees, err = n.pools.PendingFees(id)
		return err
	})
	return p, fees, err
}

// Pools lists registered pools.
func (n *Node) Pools() ([]pool.ID, error) {
	var out []pool.ID
	err := n.view(func() error {
		var err error
		out, err = n.pools.List()
		return err
	})
	return out, err
}

func (n *Node) InitializeMinter(caller [20]byte, recipients [][20]byte, amounts []*big.Int, totalSupplyHint *big.Int) error {
	return n.exec(ModuleMinter, "initialize", func() error {
		return n.minter.Initialize(caller, recipients, amounts, totalSupplyHint)
	})
}

// UpdatePeriod advances the emission schedule by at most one epoch.
func (n *Node) UpdatePeriod() (bool, error) {
	var advanced bool
	err := n.exec(ModuleMinter, "update_period", func() error {
		var err error
		advanced, err = n.minter.UpdatePeriod()
		return err
	})
	return advanced, err
}

// MinterDue reports whether an epoch is ready to advance.
func (n *Node) MinterDue() (bool, error) {
	var due bool
	err := n.view(func() error {
		var err error
		due, err = n.minter.Due()
		return err
	})
	return due, err
}

// MinterState returns the emission schedule position.
func (n *Node) MinterState() (*minter.State, error) {
	var out *minter.State
	err := n.view(func() error {
		var err error
		out, err = n.minter.State()
		return err
	})
	return out, err
}

// ClaimRebase pays the locker rebase of positionID for up to maxWeeks weeks.
func (n *Node) ClaimRebase(positionID uint64, maxWeeks int) (*big.Int, error) {
	var out *big.Int
	err := n.exec(ModuleRebase, "claim", func() error {
		var err error
		out, err = n.rebase.Claim(positionID, maxWeeks)
		return err
	})
	return out, err
}

// RebaseClaimable previews ClaimRebase.
func (n *Node) RebaseClaimable(positionID uint64, maxWeeks int) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.rebase.Claimable(positionID, maxWeeks)
		return err
	})
	return out, err
}

// RebaseState returns the distributor booking state.
func (n *Node) RebaseState() (*rebase.State, error) {
	var out *rebase.State
	err := n.view(func() error {
		var err error
		out, err = n.rebase.State()
		return err
	})
	return out, err
}
