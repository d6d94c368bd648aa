package metrics

import "github.com/prometheus/client_golang/prometheus"

// ClientMetrics exposes counters/histograms for calls against the citas API.
type ClientMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	staleDiscarded prometheus.Counter
}

func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citas",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total requests issued against the citas API",
		}, []string{"operation", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citas",
			Subsystem: "api",
			Name:      "request_latency_seconds",
			Help:      "Latency of citas API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citas",
			Subsystem: "slots",
			Name:      "stale_responses_discarded_total",
			Help:      "Slot responses discarded because a newer date was selected",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.staleDiscarded)
	return m
}

func (m *ClientMetrics) ObserveRequest(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, outcome).Inc()
	m.requestLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *ClientMetrics) ObserveStaleDiscard() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
}
