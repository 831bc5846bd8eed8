// Package metrics exposes Prometheus instrumentation for the router,
// grounded on the teacher's broad client_golang usage throughout its
// middleware stack.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the router's Prometheus collectors. The Observe*
// methods are safe to call on a nil *Metrics — they become no-ops — so
// components can be constructed without metrics wired in tests.
// RequestsTotalFor is not nil-safe.
type Metrics struct {
	requestsTotal  *prometheus.CounterVec
	throttledTotal *prometheus.CounterVec
	fanoutTotal    *prometheus.CounterVec
	fanoutLatency  *prometheus.HistogramVec
}

// New creates and registers the router's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "implink_router_requests_total",
			Help: "Total PostMessage requests handled, by direction, route and final status.",
		}, []string{"direction", "route", "status"}),
		throttledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "implink_router_throttled_total",
			Help: "Requests rejected by the per-route rate counter.",
		}, []string{"route"}),
		fanoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "implink_router_fanout_total",
			Help: "Per-client fan-out outcomes.",
		}, []string{"route", "client", "outcome"}),
		fanoutLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "implink_router_fanout_duration_seconds",
			Help:    "Latency of a single client fan-out send.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "client"}),
	}

	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.throttledTotal, m.fanoutTotal, m.fanoutLatency)
	}
	return m
}

func (m *Metrics) ObserveRequest(direction, route, status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(direction, route, status).Inc()
}

// RequestsTotalFor exposes the requests_total series for a given label
// set, for assertions with prometheus/client_golang/prometheus/testutil.
func (m *Metrics) RequestsTotalFor(direction, route, status string) prometheus.Counter {
	return m.requestsTotal.WithLabelValues(direction, route, status)
}

func (m *Metrics) ObserveThrottle(route string) {
	if m == nil {
		return
	}
	m.throttledTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) ObserveFanout(route, client, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.fanoutTotal.WithLabelValues(route, client, outcome).Inc()
	m.fanoutLatency.WithLabelValues(route, client).Observe(seconds)
}
