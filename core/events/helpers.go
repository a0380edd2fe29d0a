package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vedex/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func accountString(addr [20]byte) string {
	return crypto.AccountAddress(addr).String()
}

func poolString(pool [20]byte) string {
	return "0x" + hex.EncodeToString(pool[:])
}
