package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalid         = "invalid"
	OutcomeConflict        = "conflict"
	OutcomeError           = "error"
	OutcomeAnonymous       = "anonymous"
	OutcomeExpired         = "expired"
	OutcomeUnknownSubject  = "unknown_subject"
	OutcomeSubjectMismatch = "subject_mismatch"
)

// Metrics holds the Prometheus collectors for the auth flow.
type Metrics struct {
	registry *prometheus.Registry

	RegisterTotal       *prometheus.CounterVec
	LoginTotal          *prometheus.CounterVec
	GateTotal           *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RegisterTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tableserve_auth_register_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		LoginTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tableserve_auth_login_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		GateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tableserve_auth_gate_total",
				Help: "Bearer token checks by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tableserve_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.RegisterTotal,
		m.LoginTotal,
		m.GateTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
