package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"vedex/core/events"
)

type eventMetrics struct {
	emitted      *prometheus.CounterVec
	weekly       prometheus.Gauge
	supply       prometheus.Gauge
	periods      prometheus.Counter
	clamped      prometheus.Counter
	votes        *prometheus.CounterVec
	notified     *prometheus.CounterVec
	paid         *prometheus.CounterVec
	rebaseClaims prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics

	weiPerToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
)

// Events returns the metrics registry tracking committed protocol events. It
// is an events.Emitter and subscribes to the node directly.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
			weekly: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vedex",
				Subsystem: "emission",
				Name:      "weekly_tokens",
				Help:      "Weekly emission of the latest epoch in whole tokens.",
			}),
			supply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vedex",
				Subsystem: "emission",
				Name:      "total_supply_tokens",
				Help:      "Emission token supply after the latest epoch in whole tokens.",
			}),
			periods: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "emission",
				Name:      "epochs_total",
				Help:      "Epochs advanced by the minter.",
			}),
			clamped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "emission",
				Name:      "clamped_total",
				Help:      "Epochs whose emission was reduced by the supply cap.",
			}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "voter",
				Name:      "ballots_total",
				Help:      "Per-pool vote placements and removals.",
			}, []string{"action"}),
			notified: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "rewards",
				Name:      "notified_tokens_total",
				Help:      "Rewards notified into gauges and bribes in whole tokens.",
			}, []string{"source", "token"}),
			paid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "rewards",
				Name:      "paid_tokens_total",
				Help:      "Rewards paid to stakers and voters in whole tokens.",
			}, []string{"source", "token"}),
			rebaseClaims: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "rebase",
				Name:      "claims_total",
				Help:      "Locker rebase claims that paid out.",
			}),
		}
		prometheus.MustRegister(
			eventRegistry.emitted,
			eventRegistry.weekly,
			eventRegistry.supply,
			eventRegistry.periods,
			eventRegistry.clamped,
			eventRegistry.votes,
			eventRegistry.notified,
			eventRegistry.paid,
			eventRegistry.rebaseClaims,
		)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.emitted.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.EmissionMinted:
		m.periods.Inc()
		m.weekly.Set(tokens(e.Weekly))
		m.supply.Set(tokens(e.Supply))
		if e.Clamped {
			m.clamped.Inc()
		}
	case events.Voted:
		m.votes.WithLabelValues("vote").Inc()
	case events.VoteReset:
		m.votes.WithLabelValues("reset").Inc()
	case events.RewardNotified:
		m.notified.WithLabelValues(e.Source, normalize(e.Token)).Add(tokens(e.Amount))
	case events.RewardPaid:
		m.paid.WithLabelValues(e.Source, normalize(e.Token)).Add(tokens(e.Amount))
	case events.RebaseClaimed:
		if e.Amount != nil && e.Amount.Sign() > 0 {
			m.rebaseClaims.Inc()
		}
	}
}

func normalize(token string) string {
	normalized := strings.TrimSpace(strings.ToUpper(token))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func tokens(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(v), weiPerToken).Float64()
	return out
}
