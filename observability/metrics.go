package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coreerrors "vedex/core/errors"
	"vedex/native/common"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type callMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	callMetricsOnce sync.Once
	callRegistry    *callMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vedex",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC request. code is the JSON-RPC
// error code, zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "unauthorized" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Calls returns the registry observing node calls. It satisfies
// core.CallObserver.
func Calls() *callMetrics {
	callMetricsOnce.Do(func() {
		callRegistry = &callMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vedex",
				Subsystem: "node",
				Name:      "calls_total",
				Help:      "State-changing node calls segmented by module, operation, and result.",
			}, []string{"module", "op", "result"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vedex",
				Subsystem: "node",
				Name:      "call_duration_seconds",
				Help:      "Latency of state-changing node calls including commit.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			}, []string{"module", "op"}),
		}
		prometheus.MustRegister(callRegistry.calls, callRegistry.latency)
	})
	return callRegistry
}

// ObserveCall records one node call.
func (m *callMetrics) ObserveCall(module, op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(module, op, CallResult(err)).Inc()
	m.latency.WithLabelValues(module, op).Observe(elapsed.Seconds())
}

var resultKinds = []struct {
	err  error
	kind string
}{
	{common.ErrModulePaused, "paused"},
	{coreerrors.ErrUnauthorized, "unauthorized"},
	{coreerrors.ErrNotOwner, "not_owner"},
	{coreerrors.ErrInsufficientBalance, "insufficient_balance"},
	{coreerrors.ErrCatchUpRequired, "catch_up_required"},
	{coreerrors.ErrRateOverflow, "rate_overflow"},
}

// CallResult buckets err into a low-cardinality label.
func CallResult(err error) string {
	if err == nil {
		return "ok"
	}
	for _, kind := range resultKinds {
		if errors.Is(err, kind.err) {
			return kind.kind
		}
	}
	return "rejected"
}
