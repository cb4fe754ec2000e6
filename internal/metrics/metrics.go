// Package metrics registers the marketplace's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agrimarket"

type Metrics struct {
	NegotiationOutcomes    *prometheus.CounterVec
	TransactionTransitions *prometheus.CounterVec
	TrustRecomputeFailures prometheus.Counter
	DemandFallbacks        prometheus.Counter
	SweptNegotiations      prometheus.Counter
	RequestDuration        *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		NegotiationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiation_outcomes_total",
			Help:      "Negotiations that left the active state, by outcome.",
		}, []string{"outcome"}),
		TransactionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_transitions_total",
			Help:      "Transaction status changes, by target status.",
		}, []string{"status"}),
		TrustRecomputeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trust_recompute_failures_total",
			Help:      "Trust score recomputations that failed after a rating.",
		}),
		DemandFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_demand_fallbacks_total",
			Help:      "Price calculations that used the neutral demand adjuster.",
		}),
		SweptNegotiations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiations_expired_by_sweep_total",
			Help:      "Negotiations expired by the periodic sweep.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.NegotiationOutcomes,
		m.TransactionTransitions,
		m.TrustRecomputeFailures,
		m.DemandFallbacks,
		m.SweptNegotiations,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) NegotiationClosed(outcome string) {
	if m == nil {
		return
	}
	m.NegotiationOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TransactionMoved(status string) {
	if m == nil {
		return
	}
	m.TransactionTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) TrustRecomputeFailed() {
	if m == nil {
		return
	}
	m.TrustRecomputeFailures.Inc()
}

func (m *Metrics) DemandFallback() {
	if m == nil {
		return
	}
	m.DemandFallbacks.Inc()
}

func (m *Metrics) NegotiationsSwept(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.SweptNegotiations.Add(float64(count))
}

func (m *Metrics) ObserveRequest(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
