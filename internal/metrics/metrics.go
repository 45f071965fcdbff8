// Package metrics instruments the watch daemon for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Checks            *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	Dispatches        *prometheus.CounterVec
	ActiveDisruptions prometheus.Gauge
	LastSuccessTS     prometheus.Gauge
}

// New registers the linewatch metrics with reg (nil means the default
// registerer).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linewatch",
			Name:      "checks_total",
			Help:      "Poll cycles by outcome",
		}, []string{"status"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linewatch",
			Name:      "transitions_total",
			Help:      "Reconciliation outcomes by transition",
		}, []string{"transition"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linewatch",
			Name:      "dispatches_total",
			Help:      "Notification deliveries by channel and status",
		}, []string{"channel", "status"}),
		ActiveDisruptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linewatch",
			Name:      "active_disruptions",
			Help:      "Disruptions in the last reconciled snapshot",
		}),
		LastSuccessTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linewatch",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful cycle",
		}),
	}
	reg.MustRegister(m.Checks, m.Transitions, m.Dispatches, m.ActiveDisruptions, m.LastSuccessTS)
	return m
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
