// Package metrics defines the Prometheus collectors the server and
// session packages update, grounded on the prometheus/client_golang
// usage pattern the corpus's service-shaped repos use for their own
// request/connection counters (a caller-supplied Registerer plus typed
// collector fields, rather than the global default registry).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector a Dispatcher/session.Pool reports
// to. A nil *Metrics is valid everywhere it is used: every method on it
// is a no-op guarded by a nil receiver check, so instrumentation is
// opt-in.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	FidsInUse       prometheus.Gauge
	TagsOutstanding prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// New constructs a Metrics and registers its collectors with reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests, multiple
// instances in one process) or prometheus.DefaultRegisterer for the
// global one. cmd/ninepfs passes its own prometheus.NewRegistry() and
// exposes that over HTTP.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ninep_sessions_active",
			Help: "Number of sessions currently connected.",
		}),
		FidsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ninep_fids_in_use",
			Help: "Number of fids currently bound, summed across sessions.",
		}),
		TagsOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ninep_tags_outstanding",
			Help: "Number of client requests currently awaiting a reply.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ninep_requests_total",
			Help: "Total 9P requests dispatched, by message type.",
		}, []string{"type"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ninep_errors_total",
			Help: "Total Rerror responses emitted, by error kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.SessionsActive, m.FidsInUse, m.TagsOutstanding, m.RequestsTotal, m.ErrorsTotal)
	return m
}

func (m *Metrics) ObserveRequest(msgType string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ObserveError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionConnected() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionDisconnected() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) SetFidsInUse(n int) {
	if m == nil {
		return
	}
	m.FidsInUse.Set(float64(n))
}

func (m *Metrics) SetTagsOutstanding(n int) {
	if m == nil {
		return
	}
	m.TagsOutstanding.Set(float64(n))
}
