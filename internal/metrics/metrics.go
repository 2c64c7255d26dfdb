// Package metrics exposes the server's Prometheus collectors.
//
// The one metric that matters most here is ReconcileFailures: tag-count
// reconciliation is best-effort and its storage errors are suppressed so
// the primary write still succeeds — without a counter those failures would
// be invisible outside the logs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the server's collectors behind one registry so tests can
// create isolated instances instead of fighting over the global registry.
type Metrics struct {
	registry *prometheus.Registry

	// ReconcileFailures counts tag-count reconciliation attempts that
	// failed and were suppressed.
	ReconcileFailures prometheus.Counter

	// KeyValidations counts API-key validation attempts by outcome:
	// ok, invalid, expired.
	KeyValidations *prometheus.CounterVec

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReconcileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brainbox_tag_reconcile_failures_total",
			Help: "Tag-count reconciliation attempts that failed and were suppressed.",
		}),
		KeyValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brainbox_extension_key_validations_total",
			Help: "Extension API-key validation attempts by outcome.",
		}, []string{"outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brainbox_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}

	m.registry.MustRegister(m.ReconcileFailures, m.KeyValidations, m.RateLimited)
	return m
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
