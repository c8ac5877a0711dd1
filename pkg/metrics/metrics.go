// Package metrics exposes Prometheus collectors for authentication and
// presence bookkeeping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edupersona"

type Metrics struct {
	registry *prometheus.Registry

	AuthFailures    *prometheus.CounterVec
	Logins          *prometheus.CounterVec
	PresenceEvents  *prometheus.CounterVec
	PresenceDropped prometheus.Counter
	SweepFlipped    prometheus.Counter
	SweepRuns       *prometheus.CounterVec
}

// New registers every collector on a fresh registry. Tests get an isolated
// registry per call.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected protected requests by reason.",
		}, []string{"reason"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		PresenceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_events_total",
			Help:      "Presence events by kind and result (applied, stale, error).",
		}, []string{"kind", "result"}),
		PresenceDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_events_dropped_total",
			Help:      "Implicit heartbeats dropped because the presence queue was full.",
		}),
		SweepFlipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_sweep_offline_total",
			Help:      "Sessions flipped offline by the stale-lease sweep.",
		}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_sweep_runs_total",
			Help:      "Sweep iterations by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AuthFailures,
		m.Logins,
		m.PresenceEvents,
		m.PresenceDropped,
		m.SweepFlipped,
		m.SweepRuns,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
