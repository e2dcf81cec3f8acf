package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "research"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	analysisStatusTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_status_total",
		Help:      "Document analysis status transitions by resulting status.",
	}, []string{"status"})

	analysisDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end document analysis duration.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	extractionSessionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_sessions_total",
		Help:      "Finished extraction sessions by method and terminal status.",
	}, []string{"method", "status"})

	stepAttemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_step_attempts_total",
		Help:      "Extraction step attempts by step and outcome.",
	}, []string{"step", "outcome"})

	stepDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extraction_step_duration_seconds",
		Help:      "Extraction step duration including retries.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 90},
	}, []string{"step"})

	tagResolutionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tag_resolutions_total",
		Help:      "Tag resolutions by action (exact, reuse, generalize, create, error).",
	}, []string{"action"})

	workerJobsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Analysis queue jobs by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IncAnalysisStatus counts a document entering the given analysis status.
func IncAnalysisStatus(status string) {
	analysisStatusTotal.WithLabelValues(status).Inc()
}

// ObserveAnalysisDuration records a full analysis duration.
func ObserveAnalysisDuration(d time.Duration) {
	analysisDuration.Observe(nonNegative(d).Seconds())
}

// IncExtractionSession counts a finished extraction session.
func IncExtractionSession(method, status string) {
	extractionSessionsTotal.WithLabelValues(method, status).Inc()
}

// IncStepAttempt counts one step attempt; outcome is ok, error, timeout or invalid.
func IncStepAttempt(step, outcome string) {
	stepAttemptsTotal.WithLabelValues(step, outcome).Inc()
}

// ObserveStepDuration records the wall time spent on a step.
func ObserveStepDuration(step string, d time.Duration) {
	stepDuration.WithLabelValues(step).Observe(nonNegative(d).Seconds())
}

// IncTagResolution counts a tag resolution outcome.
func IncTagResolution(action string) {
	tagResolutionsTotal.WithLabelValues(action).Inc()
}

// IncWorkerJob counts a queue job outcome (received, completed, failed, deleted_unrecoverable).
func IncWorkerJob(outcome string) {
	workerJobsTotal.WithLabelValues(outcome).Inc()
}

// Registry exposes the process registry for tests and custom exporters.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
