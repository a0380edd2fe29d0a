package voter

import (
	"strconv"

	"vedex/native/pool"
)

var (
	poolsKey       = []byte("voter/pools")
	totalWeightKey = []byte("voter/total-weight")
	indexKey       = []byte("voter/index")
	potKey         = []byte("voter/pot")
)

func gaugeKey(id pool.ID) []byte { return []byte("voter/gauge/" + id.Hex()) }

func weightKey(id pool.ID) []byte { return []byte("voter/weight/" + id.Hex()) }

func supplyIndexKey(id pool.ID) []byte { return []byte("voter/supply-index/" + id.Hex()) }

func claimableKey(id pool.ID) []byte { return []byte("voter/claimable/" + id.Hex()) }

func ballotKey(positionID uint64) []byte {
	return strconv.AppendUint([]byte("voter/ballot/"), positionID, 10)
}
