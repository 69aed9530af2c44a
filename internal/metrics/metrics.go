package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "beliefgraph"

// Recorder owns the Prometheus collectors of the process. A nil *Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	verdicts          *prometheus.CounterVec   // by kind and reason
	reasoningDuration *prometheus.HistogramVec // by operation and outcome
	activeSessions    prometheus.Gauge

	httpRequests *prometheus.CounterVec   // by method and status
	httpDuration *prometheus.HistogramVec // by method
}

// New creates a recorder backed by its own registry, including the Go and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "verdicts_total",
			Help:      "Admission verdicts issued for learned triples",
		}, []string{"kind", "reason"}),

		reasoningDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reasoning",
			Name:      "duration_seconds",
			Help:      "Duration of compare and derive operations",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"operation", "outcome"}),

		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "active_sessions",
			Help:      "Conversation sessions currently tracked",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.verdicts,
		r.reasoningDuration,
		r.activeSessions,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveVerdict(kind, reason string) {
	if r == nil {
		return
	}
	r.verdicts.WithLabelValues(kind, reason).Inc()
}

func (r *Recorder) ObserveReasoning(operation, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.reasoningDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

func (r *Recorder) SetActiveSessions(n int) {
	if r == nil {
		return
	}
	r.activeSessions.Set(float64(n))
}

func (r *Recorder) ObserveRequest(method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}
