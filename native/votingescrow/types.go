package votingescrow

import "math/big"

const (
	// Week is the epoch length all lock ends are aligned to.
	Week uint64 = 7 * 24 * 60 * 60
	// DefaultMaxLock is four years of 365 days.
	DefaultMaxLock uint64 = 4 * 365 * 24 * 60 * 60
)

// Params configures the escrow ledger.
type Params struct {
	Token   string
	Epoch   uint64
	MinLock uint64
	MaxLock uint64
}

// DefaultParams returns the production lock parameters for token.
func DefaultParams(token string) Params {
	return Params{Token: token, Epoch: Week, MinLock: Week, MaxLock: DefaultMaxLock}
}

// Position is a lock of the escrowed token. A withdrawn or merged position
// keeps its record with a zero owner so its history stays queryable.
type Position struct {
	ID          uint64
	Owner       [20]byte
	Amount      *big.Int
	End         uint64
	Voted       bool
	Attachments uint64
	// LastOwner is the owner at the time the position was burned.
	LastOwner [20]byte
}

// Burned reports whether the position has been withdrawn or merged away.
func (p *Position) Burned() bool {
	return p == nil || p.Owner == ([20]byte{})
}

// InUse reports whether the position carries live votes or gauge
// attachments.
func (p *Position) InUse() bool {
	return p != nil && (p.Voted || p.Attachments > 0)
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.Amount = cloneBig(p.Amount)
	return &out
}

// Point is one checkpoint of a voting-power line: power equals Bias at
// Timestamp and decreases by Slope per second afterwards.
type Point struct {
	Timestamp uint64
	Bias      *big.Int
	Slope     *big.Int
}

// ValueAt projects the point to ts, clamped at zero. ts before the point's
// timestamp yields the point's bias.
func (p *Point) ValueAt(ts uint64) *big.Int {
	if p == nil || p.Bias == nil {
		return new(big.Int)
	}
	out := new(big.Int).Set(p.Bias)
	if ts > p.Timestamp && p.Slope != nil {
		decay := new(big.Int).Mul(p.Slope, new(big.Int).SetUint64(ts-p.Timestamp))
		out.Sub(out, decay)
	}
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

func (p *Point) clone() *Point {
	return &Point{Timestamp: p.Timestamp, Bias: cloneBig(p.Bias), Slope: cloneBig(p.Slope)}
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
