package votingescrow

import (
	"fmt"
	"math/big"
	"sort"
)

// series is an append-only, timestamp-ordered list of points stored as one
// record per index plus a count.
type series struct {
	st     engineState
	prefix []byte
}

func (s series) count() (uint64, error) {
	var n uint64
	if _, err := s.st.KVGet(pointCountKey(s.prefix), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s series) at(index uint64) (*Point, error) {
	pt := new(Point)
	ok, err := s.st.KVGet(pointKey(s.prefix, index), pt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("votingescrow: missing checkpoint %d", index)
	}
	return pt, nil
}

func (s series) last() (*Point, error) {
	n, err := s.count()
	if err != nil || n == 0 {
		return nil, err
	}
	return s.at(n - 1)
}

// push appends pt. A point carrying the same timestamp as the tail replaces
// it so timestamps stay strictly increasing.
func (s series) push(pt *Point) error {
	n, err := s.count()
	if err != nil {
		return err
	}
	if n > 0 {
		tail, err := s.at(n - 1)
		if err != nil {
			return err
		}
		if pt.Timestamp < tail.Timestamp {
			return fmt.Errorf("votingescrow: checkpoint at %d precedes tail %d", pt.Timestamp, tail.Timestamp)
		}
		if pt.Timestamp == tail.Timestamp {
			return s.st.KVPut(pointKey(s.prefix, n-1), pt)
		}
	}
	if err := s.st.KVPut(pointKey(s.prefix, n), pt); err != nil {
		return err
	}
	return s.st.KVPut(pointCountKey(s.prefix), n+1)
}

// search returns the latest point with Timestamp <= ts using binary search.
func (s series) search(ts uint64) (*Point, bool, error) {
	n, err := s.count()
	if err != nil || n == 0 {
		return nil, false, err
	}
	var readErr error
	idx := sort.Search(int(n), func(i int) bool {
		if readErr != nil {
			return true
		}
		pt, err := s.at(uint64(i))
		if err != nil {
			readErr = err
			return true
		}
		return pt.Timestamp > ts
	})
	if readErr != nil {
		return nil, false, readErr
	}
	if idx == 0 {
		return nil, false, nil
	}
	pt, err := s.at(uint64(idx - 1))
	if err != nil {
		return nil, false, err
	}
	return pt, true, nil
}

// Checkpoints returns the stored history of a position.
func (e *Engine) Checkpoints(id uint64) ([]*Point, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.positionSeries(id).all()
}

// GlobalCheckpoints returns the stored history of total voting power.
func (e *Engine) GlobalCheckpoints() ([]*Point, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.globalSeries().all()
}

func (s series) all() ([]*Point, error) {
	n, err := s.count()
	if err != nil {
		return nil, err
	}
	out := make([]*Point, 0, n)
	for i := uint64(0); i < n; i++ {
		pt, err := s.at(i)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

func (e *Engine) globalSeries() series {
	return series{st: e.state, prefix: globalPointsPrefix}
}

func (e *Engine) positionSeries(id uint64) series {
	return series{st: e.state, prefix: positionPointsPrefix(id)}
}

func (e *Engine) slopeChange(ts uint64) (*big.Int, error) {
	v := new(big.Int)
	if _, err := e.state.KVGet(slopeChangeKey(ts), v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) addSlopeChange(ts uint64, delta *big.Int) error {
	current, err := e.slopeChange(ts)
	if err != nil {
		return err
	}
	current.Add(current, delta)
	if current.Sign() < 0 {
		return fmt.Errorf("votingescrow: negative slope change at %d", ts)
	}
	return e.state.KVPut(slopeChangeKey(ts), current)
}

// maxWeeks bounds the walk from a global checkpoint to any later time. Every
// lock ends at most MaxLock after the checkpoint that created it, so after
// this many epoch boundaries the global slope is zero.
func (e *Engine) maxWeeks() int {
	return int(e.params.MaxLock/e.params.Epoch) + 2
}

// walkGlobal projects pt forward to ts, applying scheduled slope changes at
// each epoch boundary crossed. When record is non-nil every boundary point is
// passed to it.
func (e *Engine) walkGlobal(pt *Point, ts uint64, record func(*Point) error) (*Point, error) {
	cur := pt.clone()
	if ts <= cur.Timestamp {
		return cur, nil
	}
	boundary := e.floorEpoch(cur.Timestamp)
	for i := 0; i < e.maxWeeks(); i++ {
		if cur.Slope.Sign() == 0 {
			cur.Timestamp = ts
			return cur, nil
		}
		boundary += e.params.Epoch
		if boundary >= ts {
			boundary = ts
		}
		dSlope := new(big.Int)
		if boundary%e.params.Epoch == 0 {
			var err error
			if dSlope, err = e.slopeChange(boundary); err != nil {
				return nil, err
			}
		}
		elapsed := new(big.Int).SetUint64(boundary - cur.Timestamp)
		cur.Bias.Sub(cur.Bias, elapsed.Mul(elapsed, cur.Slope))
		cur.Slope.Sub(cur.Slope, dSlope)
		if cur.Bias.Sign() < 0 {
			cur.Bias.SetInt64(0)
		}
		if cur.Slope.Sign() < 0 {
			cur.Slope.SetInt64(0)
		}
		cur.Timestamp = boundary
		if boundary == ts {
			return cur, nil
		}
		if record != nil {
			if err := record(cur.clone()); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("votingescrow: global history walk exceeded %d epochs", e.maxWeeks())
}
