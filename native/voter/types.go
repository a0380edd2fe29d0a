package voter

import (
	"math/big"

	"vedex/native/pool"
)

// GaugeRecord links a pool to its gauge and bribe.
type GaugeRecord struct {
	Pool      pool.ID
	Gauge     [20]byte
	Bribe     [20]byte
	CreatedAt uint64
}

// Ballot is the last vote of a position. Weights keeps the relative weights
// as submitted so the vote can be re-applied; Used holds the absolute weight
// placed on each pool.
type Ballot struct {
	Pools   []pool.ID
	Weights []*big.Int
	Used    []*big.Int
}

// UsedTotal sums the weight placed by the ballot.
func (b *Ballot) UsedTotal() *big.Int {
	total := new(big.Int)
	if b == nil {
		return total
	}
	for _, used := range b.Used {
		if used != nil {
			total.Add(total, used)
		}
	}
	return total
}

// UsedOn returns the weight placed on id.
func (b *Ballot) UsedOn(id pool.ID) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	for i, p := range b.Pools {
		if p == id && i < len(b.Used) && b.Used[i] != nil {
			return new(big.Int).Set(b.Used[i])
		}
	}
	return new(big.Int)
}
