// Package metrics holds the Prometheus collectors for the studio service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Rendering backend calls
	EngineRequestTotal    *prometheus.CounterVec
	EngineRequestDuration *prometheus.HistogramVec

	// Artifact lifecycle
	ArtifactTransitionTotal *prometheus.CounterVec

	// Media CLI invocations
	FrameOperationTotal *prometheus.CounterVec

	// LLM completions
	LLMRequestTotal *prometheus.CounterVec

	// Event publishing
	EventPublishTotal *prometheus.CounterVec

	// Batch refresh tasks
	RefreshTaskTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry that
// also carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry creates the collectors on reg. Tests pass their own
// registry so they never collide with each other.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,

		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		EngineRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_engine_requests_total",
			Help: "Rendering backend calls by operation, workflow and outcome",
		}, []string{"operation", "workflow", "outcome"}),

		EngineRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studio_engine_request_duration_seconds",
			Help:    "Rendering backend call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		ArtifactTransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_artifact_transitions_total",
			Help: "Keyframe and clip status transitions",
		}, []string{"artifact", "status"}),

		FrameOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_frame_operations_total",
			Help: "Media CLI operations by kind and outcome",
		}, []string{"operation", "outcome"}),

		LLMRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_llm_requests_total",
			Help: "LLM completion calls by outcome",
		}, []string{"outcome"}),

		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_event_publish_total",
			Help: "Event publish operations by type and status",
		}, []string{"event_type", "status"}),

		RefreshTaskTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_refresh_tasks_total",
			Help: "Batch refresh tasks by entity type and status",
		}, []string{"entity_type", "status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestTotal,
			m.HTTPRequestDuration,
			m.EngineRequestTotal,
			m.EngineRequestDuration,
			m.ArtifactTransitionTotal,
			m.FrameOperationTotal,
			m.LLMRequestTotal,
			m.EventPublishTotal,
			m.RefreshTaskTotal,
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveEngine(operation, workflow, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.EngineRequestTotal.WithLabelValues(operation, workflow, outcome).Inc()
	m.EngineRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ArtifactTransition(artifact, status string) {
	if m == nil {
		return
	}
	m.ArtifactTransitionTotal.WithLabelValues(artifact, status).Inc()
}

func (m *Metrics) FrameOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.FrameOperationTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) LLMRequest(outcome string) {
	if m == nil {
		return
	}
	m.LLMRequestTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventPublished(eventType, status string) {
	if m == nil {
		return
	}
	m.EventPublishTotal.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) RefreshTask(entityType, status string) {
	if m == nil {
		return
	}
	m.RefreshTaskTotal.WithLabelValues(entityType, status).Inc()
}

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
