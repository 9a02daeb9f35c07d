// Package metrics defines the Prometheus instruments exported by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "credauth"

// Metrics holds every instrument. A nil *Metrics is valid and records nothing,
// so services can be constructed without a registry in tests.
type Metrics struct {
	authRequests   *prometheus.CounterVec
	hashDuration   *prometheus.HistogramVec
	poolInFlight   prometheus.Gauge
	poolWaiting    prometheus.Gauge
	sessionsIssued prometheus.Counter
}

// New registers all instruments with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// authRequests counts terminal controller outcomes by action
		authRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_requests_total",
			Help:      "Total number of authentication requests by action and outcome",
		}, []string{"action", "outcome"}),

		// hashDuration tracks argon2id latency; buckets sized for ~64 MiB / t=4
		hashDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "password_hash_duration_seconds",
			Help:      "Histogram of password hash and verify latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),

		poolInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "password_pool_in_flight",
			Help:      "Number of password hash operations currently running",
		}),

		poolWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "password_pool_waiting",
			Help:      "Number of callers waiting for a password hashing slot",
		}),

		sessionsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Total number of authenticated sessions issued",
		}),
	}
}

// RecordAuth counts one terminal controller outcome
func (m *Metrics) RecordAuth(action, outcome string) {
	if m == nil {
		return
	}
	m.authRequests.WithLabelValues(action, outcome).Inc()
}

// ObserveHash records the duration of a hash or verify call
func (m *Metrics) ObserveHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.hashDuration.WithLabelValues(op).Observe(d.Seconds())
}

// AddInFlight adjusts the in-flight hashing gauge
func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.poolInFlight.Add(delta)
}

// AddWaiting adjusts the gauge of callers blocked on the pool
func (m *Metrics) AddWaiting(delta float64) {
	if m == nil {
		return
	}
	m.poolWaiting.Add(delta)
}

// SessionIssued counts one successful login
func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}
