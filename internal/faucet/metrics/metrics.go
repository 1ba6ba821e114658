package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Distribution outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeNotEligible = "not_eligible"
	OutcomeThrottled   = "throttled"
	OutcomeInvalid     = "invalid_address"
	OutcomeInProgress  = "in_progress"
	OutcomeFailed      = "failed"
)

type Metrics struct {
	Distributions     *prometheus.CounterVec
	TransferDuration  prometheus.Histogram
	ReferenceFetches  *prometheus.CounterVec
	ReferenceCacheHit prometheus.Counter
	ReferenceHandles  prometheus.Gauge
	WorkflowDecisions *prometheus.CounterVec
	WorkflowConflicts prometheus.Counter
}

// New registers the faucet metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Distributions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_distributions_total",
			Help: "Distribution attempts by outcome",
		}, []string{"outcome"}),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "faucet_transfer_duration_seconds",
			Help:    "Time from transfer submission to confirmation",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60},
		}),
		ReferenceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_reference_fetches_total",
			Help: "Reference-set document fetches by result",
		}, []string{"result"}),
		ReferenceCacheHit: factory.NewCounter(prometheus.CounterOpts{
			Name: "faucet_reference_cache_hits_total",
			Help: "Eligibility checks answered from the cached reference set",
		}),
		ReferenceHandles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "faucet_reference_handles",
			Help: "Number of owner handles in the last fetched reference set",
		}),
		WorkflowDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_workflow_transitions_total",
			Help: "Workflow transitions by kind",
		}, []string{"transition"}),
		WorkflowConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "faucet_workflow_cas_conflicts_total",
			Help: "Compare-and-swap retries caused by concurrent record updates",
		}),
	}
}

func (m *Metrics) IncDistribution(outcome string) {
	if m != nil {
		m.Distributions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveTransfer(seconds float64) {
	if m != nil {
		m.TransferDuration.Observe(seconds)
	}
}

func (m *Metrics) IncReferenceFetch(result string) {
	if m != nil {
		m.ReferenceFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncReferenceCacheHit() {
	if m != nil {
		m.ReferenceCacheHit.Inc()
	}
}

func (m *Metrics) SetReferenceHandles(n int) {
	if m != nil {
		m.ReferenceHandles.Set(float64(n))
	}
}

func (m *Metrics) IncTransition(transition string) {
	if m != nil {
		m.WorkflowDecisions.WithLabelValues(transition).Inc()
	}
}

func (m *Metrics) IncConflict() {
	if m != nil {
		m.WorkflowConflicts.Inc()
	}
}
