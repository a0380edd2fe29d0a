package votingescrow

import (
	"encoding/hex"
	"strconv"
)

var (
	nextIDKey          = []byte("ve/next-id")
	lockedTotalKey     = []byte("ve/locked")
	positionPrefix     = []byte("ve/position/")
	ownerIndexPrefix   = []byte("ve/owner/")
	slopeChangePrefix  = []byte("ve/slope/")
	globalPointsPrefix = []byte("ve/global")
)

func positionKey(id uint64) []byte {
	return strconv.AppendUint(append([]byte(nil), positionPrefix...), id, 10)
}

func positionPointsPrefix(id uint64) []byte {
	return append(positionKey(id), "/points"...)
}

func ownerIndexKey(owner [20]byte) []byte {
	return append(append([]byte(nil), ownerIndexPrefix...), hex.EncodeToString(owner[:])...)
}

func slopeChangeKey(ts uint64) []byte {
	return strconv.AppendUint(append([]byte(nil), slopeChangePrefix...), ts, 10)
}

func pointCountKey(prefix []byte) []byte {
	return append(append([]byte(nil), prefix...), "/count"...)
}

func pointKey(prefix []byte, index uint64) []byte {
	buf := append(append([]byte(nil), prefix...), '/')
	return strconv.AppendUint(buf, index, 10)
}
