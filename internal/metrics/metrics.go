// Package metrics exports Prometheus counters for backend calls and answers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns its registry so tests can create as many as they like.
// All methods are safe on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	answers         *prometheus.CounterVec
}

var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studenthub_backend_requests_total",
			Help: "Backend generate calls by backend kind and outcome.",
		}, []string{"kind", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studenthub_backend_latency_seconds",
			Help:    "Backend generate latency.",
			Buckets: latencyBuckets,
		}, []string{"kind"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studenthub_answers_total",
			Help: "Answers delivered by source and channel.",
		}, []string{"source", "channel"}),
	}
	r.registry.MustRegister(r.backendRequests, r.backendLatency, r.answers)
	return r
}

// ObserveBackend records one generate call.
func (r *Recorder) ObserveBackend(kind, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.backendRequests.WithLabelValues(kind, outcome).Inc()
	r.backendLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveAnswer records one answer handed back to a user.
func (r *Recorder) ObserveAnswer(source, channel string) {
	if r == nil {
		return
	}
	r.answers.WithLabelValues(source, channel).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}
