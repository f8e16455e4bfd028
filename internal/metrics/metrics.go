// Package metrics exposes chainrouter's Prometheus metrics. Grounded on
// tokenhub's internal/metrics.Registry (dedicated prometheus.Registry, not
// the global default, so embedding the plugin in a host process never
// collides with the host's own metrics) but re-typed to the gauges/counters
// this domain's decision engine and ledger actually produce.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds chainrouter's metrics in a private prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	LedgerSpentUSD            *prometheus.GaugeVec
	LedgerExhausted           *prometheus.GaugeVec
	FailureConsecutive        *prometheus.GaugeVec
	SwitchTotal               *prometheus.CounterVec
	DecisionTotal             *prometheus.CounterVec
	TruncationTotal           prometheus.Counter
	TruncationTokensEstimated prometheus.Gauge
}

// New creates a Registry with all metrics registered against a private
// prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		LedgerSpentUSD: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainrouter_ledger_spent_usd",
			Help: "USD spent today per provider",
		}, []string{"provider"}),
		LedgerExhausted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainrouter_ledger_exhausted",
			Help: "Whether a provider's daily budget is exhausted (0/1)",
		}, []string{"provider"}),
		FailureConsecutive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainrouter_failure_consecutive",
			Help: "Consecutive classified-failure count per provider",
		}, []string{"provider"}),
		SwitchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainrouter_switch_total",
			Help: "Total provider/model switches, by reason",
		}, []string{"reason"}),
		DecisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainrouter_decision_total",
			Help: "Total decision-engine outcomes, by action",
		}, []string{"action"}),
		TruncationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainrouter_truncation_total",
			Help: "Total session-log truncation runs",
		}),
		TruncationTokensEstimated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chainrouter_truncation_tokens_estimated",
			Help: "Estimated token count of the session log after the most recent truncation",
		}),
	}
	reg.MustRegister(
		m.LedgerSpentUSD, m.LedgerExhausted, m.FailureConsecutive,
		m.SwitchTotal, m.DecisionTotal, m.TruncationTotal, m.TruncationTokensEstimated,
	)
	return m
}

// Handler returns the Prometheus exposition HTTP handler for this registry.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
