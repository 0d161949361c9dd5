package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hashplanet/internal/ratelimit/models"
)

type Metrics struct {
	Rejected    *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hashplanet_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"class", "scope"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "hashplanet_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the bucket store errored",
		}),
	}
}

func (m *Metrics) IncrementRejected(class models.EndpointClass, scope string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(string(class), scope).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
