package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for transition metrics.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the registry's Prometheus collectors.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	TotalSupply        prometheus.Gauge
	UnclaimedSupply    prometheus.Gauge
	RewardFailures     prometheus.Counter
	AuditDropped       prometheus.Counter
}

// New creates the registry metrics and registers them with reg. A nil reg
// registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hashplanet_registry_transitions_total",
			Help: "Registry state transitions by operation and outcome",
		}, []string{"operation", "outcome"}),
		TransitionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hashplanet_registry_transition_duration_seconds",
			Help:    "Latency of registry state transitions",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		TotalSupply: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hashplanet_registry_total_supply",
			Help: "Number of registered entries",
		}),
		UnclaimedSupply: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hashplanet_registry_unclaimed_supply",
			Help: "Number of entries held by the registry",
		}),
		RewardFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashplanet_registry_reward_failures_total",
			Help: "Claim rewards that could not be minted",
		}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashplanet_registry_audit_dropped_total",
			Help: "Audit events that could not be handed to the publisher",
		}),
	}
}

func (m *Metrics) ObserveTransition(operation, outcome string, d time.Duration) {
	m.Transitions.WithLabelValues(operation, outcome).Inc()
	m.TransitionDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) SetSupply(total, unclaimed int) {
	m.TotalSupply.Set(float64(total))
	m.UnclaimedSupply.Set(float64(unclaimed))
}

func (m *Metrics) IncrementRewardFailures() {
	m.RewardFailures.Inc()
}

func (m *Metrics) IncrementAuditDropped() {
	m.AuditDropped.Inc()
}
