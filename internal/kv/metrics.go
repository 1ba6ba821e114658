package kv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the degraded-mode behaviour of FallbackStore.
type Metrics struct {
	PrimaryErrors   *prometheus.CounterVec
	FallbackServed  *prometheus.CounterVec
	CircuitOpen     prometheus.Gauge
	OpDuration      *prometheus.HistogramVec
	CircuitOpenings prometheus.Counter
}

// NewMetrics registers the store metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		PrimaryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_kv_primary_errors_total",
			Help: "Primary store operations that failed and were served by the fallback",
		}, []string{"op"}),
		FallbackServed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_kv_fallback_served_total",
			Help: "Store operations served by the in-process fallback",
		}, []string{"op"}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "faucet_kv_circuit_open",
			Help: "1 while the primary store circuit is open",
		}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faucet_kv_primary_op_duration_seconds",
			Help:    "Latency of primary store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		CircuitOpenings: factory.NewCounter(prometheus.CounterOpts{
			Name: "faucet_kv_circuit_openings_total",
			Help: "Number of times the primary store circuit opened",
		}),
	}
}

func (m *Metrics) incPrimaryError(op string) {
	if m != nil {
		m.PrimaryErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) incFallback(op string) {
	if m != nil {
		m.FallbackServed.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) observe(op string, seconds float64) {
	if m != nil {
		m.OpDuration.WithLabelValues(op).Observe(seconds)
	}
}

func (m *Metrics) setOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		m.CircuitOpenings.Inc()
		return
	}
	m.CircuitOpen.Set(0)
}
