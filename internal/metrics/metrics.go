// Package metrics counts and times requests primer makes to the textbook backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "primer"

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport_error"
)

// Endpoint labels.
const (
	EndpointSignIn   = "auth_signin"
	EndpointSignUp   = "auth_signup"
	EndpointSignOut  = "auth_signout"
	EndpointSession  = "auth_session"
	EndpointSync     = "personalization_sync"
	EndpointProfile  = "personalization_profile"
	EndpointQuery    = "rag_query"
	EndpointSelect   = "rag_query_selection"
	EndpointRAGCheck = "rag_health"
)

// Metrics holds the backend request collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg      *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Backend requests by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Backend request latency by endpoint.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
	}
}

// Observe records one finished request.
func (m *Metrics) Observe(endpoint string, start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.duration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Outcome maps an HTTP status code and transport error to an outcome label.
func Outcome(status int, err error) string {
	switch {
	case err != nil:
		return OutcomeTransport
	case status >= 200 && status < 300:
		return OutcomeSuccess
	default:
		return OutcomeRejected
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Requests returns the counter vector, for tests and status output.
func (m *Metrics) Requests() *prometheus.CounterVec {
	return m.requests
}
