package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the review generation service.
// Metrics are organized by subsystem: jobs, stages, documents, and outbound
// calls. All collectors are registered via promauto against the provided
// registerer.
type Metrics struct {
	// JobsSubmitted counts jobs accepted at the control surface.
	JobsSubmitted prometheus.Counter

	// JobsCompleted counts jobs by terminal outcome (finished, failed, canceled).
	JobsCompleted *prometheus.CounterVec

	// JobDuration observes the end-to-end duration of finished jobs in seconds.
	JobDuration prometheus.Histogram

	// StageDuration observes per-stage duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// DocumentsProcessed counts per-document operations by stage and outcome
	// (ok, skipped, failed).
	DocumentsProcessed *prometheus.CounterVec

	// CacheHits counts document fetches satisfied from the PDF cache.
	CacheHits prometheus.Counter

	// SearchRequests counts OpenAlex search requests by outcome.
	SearchRequests *prometheus.CounterVec

	// SearchDuration observes OpenAlex search latency in seconds.
	SearchDuration prometheus.Histogram

	// GenerationRequests counts text-generation API calls by kind
	// (summary, section, final) and outcome.
	GenerationRequests *prometheus.CounterVec

	// GenerationDuration observes generation call latency in seconds, by kind.
	GenerationDuration *prometheus.HistogramVec

	// EventsPublished counts lifecycle events published to Kafka by type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts lifecycle events that could not be published.
	EventsFailed prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all service metrics with the given
// registerer. Tests pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total review generation jobs accepted for processing.",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total jobs reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewgen",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "End-to-end duration of finished jobs.",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewgen",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage"}),
		DocumentsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Per-document operations by stage and outcome.",
		}, []string{"stage", "outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "pdf",
			Name:      "cache_hits_total",
			Help:      "Document fetches satisfied from the content-addressed cache.",
		}),
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "openalex",
			Name:      "requests_total",
			Help:      "OpenAlex search requests by outcome.",
		}, []string{"outcome"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewgen",
			Subsystem: "openalex",
			Name:      "request_duration_seconds",
			Help:      "OpenAlex search request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		GenerationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Text-generation API calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		GenerationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewgen",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Text-generation API call latency by kind.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"kind"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Job lifecycle events published, by type.",
		}, []string{"type"}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewgen",
			Subsystem: "events",
			Name:      "failed_total",
			Help:      "Job lifecycle events that could not be published.",
		}),
	}
}

// RecordJobOutcome increments the terminal-outcome counter.
func (m *Metrics) RecordJobOutcome(outcome string) {
	if m == nil {
		return
	}
	m.JobsCompleted.WithLabelValues(outcome).Inc()
}

// RecordDocument increments the per-document counter for a stage outcome.
func (m *Metrics) RecordDocument(stage, outcome string) {
	if m == nil {
		return
	}
	m.DocumentsProcessed.WithLabelValues(stage, outcome).Inc()
}

// RecordGeneration records one text-generation call.
func (m *Metrics) RecordGeneration(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationRequests.WithLabelValues(kind, outcome).Inc()
	m.GenerationDuration.WithLabelValues(kind).Observe(seconds)
}
