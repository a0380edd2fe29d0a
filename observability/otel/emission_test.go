package otel

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"vedex/native/minter"
)

type fakeMinter struct{ state *minter.State }

func (f *fakeMinter) MinterState() (*minter.State, error) { return f.state, nil }

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestEmissionGaugesReportMinterState(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	src := &fakeMinter{state: &minter.State{}}
	reg, err := RegisterEmissionGauges(src, 18)
	require.NoError(t, err)
	defer reg.Unregister()

	for name, data := range collect(t, reader) {
		switch g := data.(type) {
		case metricdata.Gauge[float64]:
			require.Empty(t, g.DataPoints, name)
		case metricdata.Gauge[int64]:
			require.Empty(t, g.DataPoints, name)
		}
	}

	weekly := new(big.Int).Mul(big.NewInt(19_600_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	src.state = &minter.State{Initialized: true, ActivePeriod: 1_209_600, Weekly: weekly, Periods: 1}
	got := collect(t, reader)

	w, ok := got["vedex.minter.weekly_emission"].(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, w.DataPoints, 1)
	require.InDelta(t, 19_600_000, w.DataPoints[0].Value, 1e-6)

	p, ok := got["vedex.minter.active_period"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, p.DataPoints, 1)
	require.Equal(t, int64(1_209_600), p.DataPoints[0].Value)
}

