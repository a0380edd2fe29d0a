package observability

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/native/common"
)

func TestEventsTrackEmission(t *testing.T) {
	m := Events()
	weekly := new(big.Int).Mul(big.NewInt(980), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	before := testutil.ToFloat64(m.periods)
	m.Emit(events.EmissionMinted{Weekly: weekly, Supply: weekly, Growth: new(big.Int), Minted: weekly})
	require.Equal(t, before+1, testutil.ToFloat64(m.periods))
	require.InDelta(t, 980, testutil.ToFloat64(m.weekly), 1e-9)

	votes := testutil.ToFloat64(m.votes.WithLabelValues("vote"))
	m.Emit(events.Voted{PositionID: 1, Weight: big.NewInt(1)})
	require.Equal(t, votes+1, testutil.ToFloat64(m.votes.WithLabelValues("vote")))
}

func TestCallResultBuckets(t *testing.T) {
	require.Equal(t, "ok", CallResult(nil))
	require.Equal(t, "paused", CallResult(fmt.Errorf("voter: %w", common.ErrModulePaused)))
	require.Equal(t, "not_owner", CallResult(fmt.Errorf("%w: position 3", coreerrors.ErrNotOwner)))
	require.Equal(t, "rejected", CallResult(errors.New("boom")))

	calls := Calls()
	before := testutil.ToFloat64(calls.calls.WithLabelValues("voter", "vote", "ok"))
	calls.ObserveCall("voter", "vote", nil, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(calls.calls.WithLabelValues("voter", "vote", "ok")))
}
