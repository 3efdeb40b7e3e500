// Package metrics exposes Prometheus counters for governance outcomes.
// Everything hangs off a private registry so tests and embedding binaries
// never fight over the default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the governance counters.
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	denials   prometheus.Counter
	scorerErr prometheus.Counter
}

// New builds a metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_decisions_total",
			Help: "Policy decisions by action.",
		}, []string{"action"}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scope_access_denials_total",
			Help: "Permission denials at the tool gate.",
		}),
		scorerErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scope_scorer_failures_total",
			Help: "Risk scorer failures degraded to the unsafe verdict.",
		}),
	}

	reg.MustRegister(m.decisions, m.denials, m.scorerErr)
	return m
}

// Decision counts one policy outcome.
func (m *Metrics) Decision(action string) {
	m.decisions.WithLabelValues(action).Inc()
}

// Denial counts one access denial.
func (m *Metrics) Denial() {
	m.denials.Inc()
}

// ScorerFailure counts one degraded scoring call.
func (m *Metrics) ScorerFailure() {
	m.scorerErr.Inc()
}

// Handler serves the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
