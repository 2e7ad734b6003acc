// Package metrics exposes Prometheus collectors for the fulfillment engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors and the registry they live in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	sweepOutcomes *prometheus.CounterVec
	ordersCreated prometheus.Counter
	assignments   *prometheus.CounterVec
	paymentEvents *prometheus.CounterVec
}

// New creates collectors on a fresh registry, including Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeadopt",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "treeadopt",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeadopt",
			Name:      "task_transitions_total",
			Help:      "Applied task status transitions.",
		}, []string{"from", "to"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeadopt",
			Name:      "task_conflicts_total",
			Help:      "Conditional task writes that lost to a concurrent writer.",
		}, []string{"op"}),
		sweepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeadopt",
			Name:      "escalation_sweep_tasks_total",
			Help:      "Escalation sweep results per task.",
		}, []string{"outcome"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treeadopt",
			Name:      "orders_created_total",
			Help:      "Orders created.",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeadopt",
			Name:      "order_assignments_total",
			Help:      "Assignment attempts by result.",
		}, []string{"result"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeadopt",
			Name:      "payment_events_total",
			Help:      "Payment events by source and result.",
		}, []string{"source", "result"}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.transitions, m.conflicts,
		m.sweepOutcomes, m.ordersCreated, m.assignments, m.paymentEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Transition records an applied task transition.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Conflict records a lost conditional write.
func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

// SweepOutcome adds n tasks with the given outcome (escalated, skipped, failed).
func (m *Metrics) SweepOutcome(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweepOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// OrderCreated counts a new order.
func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// Assignment records an assignment attempt (assigned, deferred, raced).
func (m *Metrics) Assignment(result string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(result).Inc()
}

// PaymentEvent records a payment event (http or nats) and its result.
func (m *Metrics) PaymentEvent(source, result string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(source, result).Inc()
}
