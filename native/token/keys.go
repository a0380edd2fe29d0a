package token

import (
	"encoding/hex"
	"strings"
)

var (
	tokenMetaPrefix      = []byte("token/meta/")
	tokenIndexKey        = []byte("token/index")
	tokenSupplyPrefix    = []byte("token/supply/")
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")
)

// NormalizeSymbol canonicalises a token symbol for storage and lookups.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func metaKey(symbol string) []byte {
	return append(append([]byte(nil), tokenMetaPrefix...), symbol...)
}

func supplyKey(symbol string) []byte {
	return append(append([]byte(nil), tokenSupplyPrefix...), symbol...)
}

func balanceKey(symbol string, addr [20]byte) []byte {
	buf := make([]byte, 0, len(tokenBalancePrefix)+len(symbol)+1+40)
	buf = append(buf, tokenBalancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, '/')
	return append(buf, hex.EncodeToString(addr[:])...)
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(tokenAllowancePrefix)+len(symbol)+2+80)
	buf = append(buf, tokenAllowancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, '/')
	buf = append(buf, hex.EncodeToString(owner[:])...)
	buf = append(buf, '/')
	return append(buf, hex.EncodeToString(spender[:])...)
}
