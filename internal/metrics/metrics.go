// Package metrics exposes Prometheus collectors for upstream and search calls.
//
// Metrics:
//   - gemini_router_upstream_requests_total: upstream attempts by provider and status
//   - gemini_router_upstream_retries_total: repeated attempts after a rate-limited response
//   - gemini_router_upstream_latency_seconds: per-attempt upstream latency
//   - gemini_router_upstream_sentinel_total: requests that ended with the sentinel answer
//   - gemini_router_search_requests_total: search enrichment outcomes
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gemini_router"

// Search outcomes.
const (
	SearchSkipped = "skipped"
	SearchOK      = "ok"
	SearchEmpty   = "empty"
	SearchError   = "error"
)

// StatusTransportError labels attempts that never produced an HTTP status.
const StatusTransportError = "transport_error"

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamRetries  *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamSentinel *prometheus.CounterVec
	searchRequests   *prometheus.CounterVec
}

// New creates and registers the collectors. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream generation attempts by status",
			},
			[]string{"provider", "status"},
		),
		upstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Total number of repeated upstream attempts",
			},
			[]string{"provider"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Upstream generation attempt latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"provider"},
		),
		upstreamSentinel: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_sentinel_total",
				Help:      "Total number of requests answered with the sentinel text",
			},
			[]string{"provider"},
		),
		searchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Search enrichment outcomes",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.upstreamRequests,
		m.upstreamRetries,
		m.upstreamLatency,
		m.upstreamSentinel,
		m.searchRequests,
	)
	return m
}

// RecordAttempt records one upstream attempt. status 0 means the transport failed.
func (m *Metrics) RecordAttempt(provider string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	label := StatusTransportError
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.upstreamRequests.WithLabelValues(provider, label).Inc()
	m.upstreamLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordRetry records a repeated attempt.
func (m *Metrics) RecordRetry(provider string) {
	if m == nil {
		return
	}
	m.upstreamRetries.WithLabelValues(provider).Inc()
}

// RecordSentinel records a request that ended without a usable answer.
func (m *Metrics) RecordSentinel(provider string) {
	if m == nil {
		return
	}
	m.upstreamSentinel.WithLabelValues(provider).Inc()
}

// RecordSearch records a search enrichment outcome.
func (m *Metrics) RecordSearch(outcome string) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(outcome).Inc()
}

// Handler returns the exposition handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
