package otel

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"vedex/native/minter"
)

// MinterReader exposes the emission schedule state sampled by the gauges.
type MinterReader interface {
	MinterState() (*minter.State, error)
}

// RegisterEmissionGauges publishes the minter's weekly emission (in whole
// tokens), active period and advanced epoch count as observable gauges on
// the global meter provider. decimals scales the weekly amount.
func RegisterEmissionGauges(src MinterReader, decimals uint8) (metric.Registration, error) {
	meter := otel.Meter("vedex/minter")
	weekly, err := meter.Float64ObservableGauge("vedex.minter.weekly_emission",
		metric.WithDescription("Weekly emission of the current epoch"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}
	period, err := meter.Int64ObservableGauge("vedex.minter.active_period",
		metric.WithDescription("Start of the active emission epoch"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	periods, err := meter.Int64ObservableGauge("vedex.minter.periods",
		metric.WithDescription("Epochs advanced since initialisation"))
	if err != nil {
		return nil, err
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st, err := src.MinterState()
		if err != nil {
			return err
		}
		if !st.Initialized {
			return nil
		}
		whole, _ := new(big.Float).Quo(new(big.Float).SetInt(st.Weekly), scale).Float64()
		o.ObserveFloat64(weekly, whole)
		o.ObserveInt64(period, int64(st.ActivePeriod))
		o.ObserveInt64(periods, int64(st.Periods))
		return nil
	}, weekly, period, periods)
}
