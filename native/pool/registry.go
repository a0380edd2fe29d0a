package pool

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	coreerrors "vedex/core/errors"
	"vedex/crypto"
	"vedex/native/token"
)

var (
	errNilState      = errors.New("pool registry: state not configured")
	ErrPoolNotFound  = errors.New("pool registry: pool not found")
	ErrPoolExists    = errors.New("pool registry: pool already registered")
	ErrInvalidPoolID = errors.New("pool registry: invalid pool id")
)

// ID identifies a liquidity pool. Its derivation belongs to the AMM.
type ID [20]byte

// Hex renders the id with a 0x prefix.
func (id ID) Hex() string { return "0x" + hex.EncodeToString(id[:]) }

// ParseID decodes a 0x-prefixed hex pool id.
func ParseID(s string) (ID, error) {
	var id ID
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("%w: %q", ErrInvalidPoolID, s)
	}
	copy(id[:], raw)
	return id, nil
}

// Pool is the registry view of an AMM pool: its identity, its pair and the
// symbol of the liquidity-share token that gauges stake.
type Pool struct {
	ID      ID
	Token0  string
	Token1  string
	Stable  bool
	LPToken string
	// FeeClaimer is the only account allowed to sweep accrued fees, normally
	// the pool's gauge.
	FeeClaimer [20]byte
}

// Fees holds trading fees accrued by a pool and not yet claimed.
type Fees struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
}

type tokenLedger interface {
	Exists(symbol string) bool
	Register(symbol string, decimals uint8, minter [20]byte) error
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// Registry tracks pools known to the emission core and escrows their fee
// revenue until the pool's gauge claims it.
type Registry struct {
	state  registryState
	tokens tokenLedger
}

// NewRegistry constructs a registry over the provided state and token ledger.
func NewRegistry(st registryState, tokens tokenLedger) *Registry {
	return &Registry{state: st, tokens: tokens}
}

// Address returns the custody account holding a pool's unclaimed fees.
func Address(id ID) [20]byte {
	return crypto.ModuleAddress("pool/" + id.Hex())
}

// LPSymbol derives the liquidity-share token symbol for a pool.
func LPSymbol(id ID, stable bool) string {
	prefix := "VLP-"
	if stable {
		prefix = "SLP-"
	}
	return prefix + strings.ToUpper(hex.EncodeToString(id[:4]))
}

// Register records a pool and its LP token. The LP token is registered in the
// ledger with minter as its mint authority.
func (r *Registry) Register(id ID, token0, token1 string, stable bool, minter [20]byte) (*Pool, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if id == (ID{}) {
		return nil, ErrInvalidPoolID
	}
	token0 = token.NormalizeSymbol(token0)
	token1 = token.NormalizeSymbol(token1)
	if token0 == "" || token1 == "" || token0 == token1 {
		return nil, fmt.Errorf("pool registry: invalid pair %q/%q", token0, token1)
	}
	if ok, err := r.state.KVGet(recordKey(id), new(Pool)); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrPoolExists
	}
	p := &Pool{ID: id, Token0: token0, Token1: token1, Stable: stable, LPToken: LPSymbol(id, stable)}
	if r.tokens != nil && !r.tokens.Exists(p.LPToken) {
		if err := r.tokens.Register(p.LPToken, 18, minter); err != nil {
			return nil, err
		}
	}
	if err := r.state.KVPut(recordKey(id), p); err != nil {
		return nil, err
	}
	var index []ID
	if err := r.state.KVGetList(poolIndexKey, &index); err != nil {
		return nil, err
	}
	index = append(index, id)
	if err := r.state.KVPut(poolIndexKey, index); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the pool record for id.
func (r *Registry) Get(id ID) (*Pool, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	p := new(Pool)
	ok, err := r.state.KVGet(recordKey(id), p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id.Hex())
	}
	return p, nil
}

// List returns every registered pool id in registration order.
func (r *Registry) List() ([]ID, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var index []ID
	if err := r.state.KVGetList(poolIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// SetFeeClaimer authorises claimer to sweep the pool's fees.
func (r *Registry) SetFeeClaimer(id ID, claimer [20]byte) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	p.FeeClaimer = claimer
	return r.state.KVPut(recordKey(id), p)
}

// PendingFees returns fees accrued and not yet claimed.
func (r *Registry) PendingFees(id ID) (*Fees, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	fees := &Fees{Amount0: new(big.Int), Amount1: new(big.Int)}
	if _, err := r.state.KVGet(feesKey(id), fees); err != nil {
		return nil, err
	}
	if fees.Amount0 == nil {
		fees.Amount0 = new(big.Int)
	}
	if fees.Amount1 == nil {
		fees.Amount1 = new(big.Int)
	}
	return fees, nil
}

// RecordFees moves trading fees from payer into the pool's fee custody. The
// AMM calls this as swaps settle.
func (r *Registry) RecordFees(payer [20]byte, id ID, amount0, amount1 *big.Int) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	fees, err := r.PendingFees(id)
	if err != nil {
		return err
	}
	custody := Address(id)
	for _, leg := range []struct {
		symbol string
		amount *big.Int
		total  *big.Int
	}{{p.Token0, amount0, fees.Amount0}, {p.Token1, amount1, fees.Amount1}} {
		if leg.amount == nil || leg.amount.Sign() == 0 {
			continue
		}
		if leg.amount.Sign() < 0 {
			return coreerrors.ErrInvalidAmount
		}
		if err := r.tokens.Transfer(leg.symbol, payer, custody, leg.amount); err != nil {
			return err
		}
		leg.total.Add(leg.total, leg.amount)
	}
	return r.state.KVPut(feesKey(id), fees)
}

// ClaimTradingFees pays every accrued fee to the configured claimer and
// returns the amounts swept.
func (r *Registry) ClaimTradingFees(caller [20]byte, id ID) (*big.Int, *big.Int, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if p.FeeClaimer == ([20]byte{}) || caller != p.FeeClaimer {
		return nil, nil, coreerrors.ErrUnauthorized
	}
	fees, err := r.PendingFees(id)
	if err != nil {
		return nil, nil, err
	}
	custody := Address(id)
	if err := r.tokens.Transfer(p.Token0, custody, caller, fees.Amount0); err != nil {
		return nil, nil, err
	}
	if err := r.tokens.Transfer(p.Token1, custody, caller, fees.Amount1); err != nil {
		return nil, nil, err
	}
	if err := r.state.KVPut(feesKey(id), &Fees{Amount0: new(big.Int), Amount1: new(big.Int)}); err != nil {
		return nil, nil, err
	}
	return fees.Amount0, fees.Amount1, nil
}
