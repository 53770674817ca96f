package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rex"

// Metrics holds the collectors the store gateway reports to.
type Metrics struct {
	gatherer   prometheus.Gatherer
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
}

// New registers the collectors with reg. Passing a fresh registry keeps
// tests independent of the process-wide default.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations dispatched through the gateway, by outcome code.",
		}, []string{"backend", "operation", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_in_flight",
			Help:      "Store operations currently executing.",
		}),
	}
}

func (m *Metrics) Observe(backend, operation, code string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(backend, operation, code).Inc()
	m.duration.WithLabelValues(backend, operation).Observe(seconds)
}

func (m *Metrics) Started() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) Finished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

// Operations exposes the counter vector for assertions.
func (m *Metrics) Operations() *prometheus.CounterVec {
	return m.operations
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
