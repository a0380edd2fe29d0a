package events

import (
	"math/big"
	"strings"

	"vedex/core/types"
)

const (
	TypeTransfer = "token.transfer"
	TypeMint     = "token.mint"
	TypeApproval = "token.approval"
)

// Transfer is emitted for every balance movement between accounts.
type Transfer struct {
	Token  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"token":  strings.ToUpper(e.Token),
			"from":   accountString(e.From),
			"to":     accountString(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type Mint struct {
	Token  string
	To     [20]byte
	Amount *big.Int
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{
		Type: TypeMint,
		Attributes: map[string]string{
			"token":  strings.ToUpper(e.Token),
			"to":     accountString(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type Approval struct {
	Token   string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{
		Type: TypeApproval,
		Attributes: map[string]string{
			"token":   strings.ToUpper(e.Token),
			"owner":   accountString(e.Owner),
			"spender": accountString(e.Spender),
			"amount":  formatAmount(e.Amount),
		},
	}
}
