package token

import (
	"errors"
	"fmt"
	"math/big"

	"vedex/core/events"
	coreerrors "vedex/core/errors"
)

var (
	errNilState        = errors.New("token ledger: state not configured")
	ErrUnknownToken    = errors.New("token ledger: unknown token")
	ErrTokenRegistered = errors.New("token ledger: token already registered")
	ErrInvalidSymbol   = errors.New("token ledger: invalid symbol")
	ErrAllowance       = errors.New("token ledger: allowance exceeded")
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
}

// Metadata describes a registered fungible token.
type Metadata struct {
	Symbol   string
	Decimals uint8
	Minter   [20]byte
}

// Ledger is a multi-token fungible balance book. Balances, allowances and
// supplies are persisted through the state manager so they participate in the
// surrounding transaction.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger creates a ledger backed by the supplied state.
func NewLedger(st ledgerState) *Ledger {
	return &Ledger{state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event sink. Passing nil installs a no-op emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

// Register adds a token with the supplied mint authority.
func (l *Ledger) Register(symbol string, decimals uint8, minter [20]byte) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	symbol = NormalizeSymbol(symbol)
	if symbol == "" || len(symbol) > 32 {
		return ErrInvalidSymbol
	}
	ok, err := l.state.KVGet(metaKey(symbol), new(Metadata))
	if err != nil {
		return err
	}
	if ok {
		return ErrTokenRegistered
	}
	if err := l.state.KVPut(metaKey(symbol), &Metadata{Symbol: symbol, Decimals: decimals, Minter: minter}); err != nil {
		return err
	}
	var index []string
	if err := l.state.KVGetList(tokenIndexKey, &index); err != nil {
		return err
	}
	index = append(index, symbol)
	return l.state.KVPut(tokenIndexKey, index)
}

// Tokens lists registered symbols in registration order.
func (l *Ledger) Tokens() ([]string, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	var index []string
	if err := l.state.KVGetList(tokenIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// Metadata returns the registration record for symbol.
func (l *Ledger) Metadata(symbol string) (*Metadata, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	symbol = NormalizeSymbol(symbol)
	meta := new(Metadata)
	ok, err := l.state.KVGet(metaKey(symbol), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return meta, nil
}

// Exists reports whether symbol is registered.
func (l *Ledger) Exists(symbol string) bool {
	_, err := l.Metadata(symbol)
	return err == nil
}

// SetMinter hands the mint authority of symbol to next.
func (l *Ledger) SetMinter(caller [20]byte, symbol string, next [20]byte) error {
	meta, err := l.Metadata(symbol)
	if err != nil {
		return err
	}
	if caller != meta.Minter {
		return coreerrors.ErrUnauthorized
	}
	meta.Minter = next
	return l.state.KVPut(metaKey(meta.Symbol), meta)
}

// Mint creates new units of symbol. Only the registered minter may mint.
func (l *Ledger) Mint(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	meta, err := l.Metadata(symbol)
	if err != nil {
		return err
	}
	if caller != meta.Minter {
		return coreerrors.ErrUnauthorized
	}
	supply, err := l.TotalSupply(meta.Symbol)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(supplyKey(meta.Symbol), new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	balance, err := l.BalanceOf(meta.Symbol, to)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(balanceKey(meta.Symbol, to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emit(events.Mint{Token: meta.Symbol, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// TotalSupply returns the minted supply of symbol.
func (l *Ledger) TotalSupply(symbol string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply := new(big.Int)
	if _, err := l.state.KVGet(supplyKey(NormalizeSymbol(symbol)), supply); err != nil {
		return nil, err
	}
	return supply, nil
}

// BalanceOf returns the balance of addr in symbol. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(balanceKey(NormalizeSymbol(symbol), addr), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance := new(big.Int)
	if _, err := l.state.KVGet(allowanceKey(NormalizeSymbol(symbol), owner, spender), allowance); err != nil {
		return nil, err
	}
	return allowance, nil
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(symbol string, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	meta, err := l.Metadata(symbol)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(allowanceKey(meta.Symbol, owner, spender), new(big.Int).Set(amount)); err != nil {
		return err
	}
	l.emit(events.Approval{Token: meta.Symbol, Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount of symbol from one account to another. A failed
// transfer wraps ErrTransferFailed.
func (l *Ledger) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	meta, err := l.Metadata(symbol)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrTransferFailed, err)
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := l.BalanceOf(meta.Symbol, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %w: %s balance %s < %s", coreerrors.ErrTransferFailed, coreerrors.ErrInsufficientBalance, meta.Symbol, fromBalance, amount)
	}
	if from != to {
		if err := l.state.KVPut(balanceKey(meta.Symbol, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		toBalance, err := l.BalanceOf(meta.Symbol, to)
		if err != nil {
			return err
		}
		if err := l.state.KVPut(balanceKey(meta.Symbol, to), new(big.Int).Add(toBalance, amount)); err != nil {
			return err
		}
	}
	l.emit(events.Transfer{Token: meta.Symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// TransferFrom moves amount from owner to to using spender's allowance.
func (l *Ledger) TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	symbol = NormalizeSymbol(symbol)
	if spender != from {
		allowance, err := l.Allowance(symbol, from, spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %w: have %s need %s", coreerrors.ErrTransferFailed, ErrAllowance, allowance, amount)
		}
		if err := l.state.KVPut(allowanceKey(symbol, from, spender), new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return l.Transfer(symbol, from, to, amount)
}
