// Package monitoring provides metrics and observability for the blog generation backend
package monitoring

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blog_jobs_total",
			Help: "Total number of blog generation jobs by terminal status",
		},
		[]string{"status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blog_job_duration_seconds",
			Help:    "Duration of blog generation jobs",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blog_jobs_in_flight",
			Help: "Number of jobs currently running a pipeline",
		},
	)

	jobQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blog_job_queue_size",
			Help: "Current size of the job queue",
		},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blog_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)

	// Extraction metrics
	scrapeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blog_scrape_attempts_total",
			Help: "Total number of search result extraction attempts",
		},
		[]string{"outcome"},
	)

	// Text generation metrics
	llmRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blog_llm_requests_total",
			Help: "Total number of text generation requests",
		},
		[]string{"operation", "status"},
	)

	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blog_llm_request_duration_seconds",
			Help:    "Duration of text generation requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"operation", "status"},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blog_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blog_active_workers",
			Help: "Number of job workers",
		},
	)
)

// RecordJob records a job reaching a terminal status
func RecordJob(status string, duration float64) {
	jobsTotal.WithLabelValues(status).Inc()
	jobDuration.WithLabelValues(status).Observe(duration)
}

// JobStarted increments the in-flight gauge; the returned func decrements it.
func JobStarted() func() {
	jobsInFlight.Inc()
	return jobsInFlight.Dec
}

// UpdateJobQueueSize updates the job queue size gauge
func UpdateJobQueueSize(size int) {
	jobQueueSize.Set(float64(size))
}

// stageOutcomes keeps totals per stage for alert rules, which cannot read
// back from the prometheus registry.
var stageOutcomes = struct {
	sync.Mutex
	total, failed map[string]int64
}{total: map[string]int64{}, failed: map[string]int64{}}

// RecordStage records the duration of one pipeline stage
func RecordStage(stage, status string, duration float64) {
	stageDuration.WithLabelValues(stage, status).Observe(duration)

	stageOutcomes.Lock()
	stageOutcomes.total[stage]++
	if status == "failed" {
		stageOutcomes.failed[stage]++
	}
	stageOutcomes.Unlock()
}

// StageFailureRate returns the share of failed runs of a stage, or 0 until
// the stage has run minSamples times.
func StageFailureRate(stage string, minSamples int64) float64 {
	stageOutcomes.Lock()
	defer stageOutcomes.Unlock()
	total := stageOutcomes.total[stage]
	if total == 0 || total < minSamples {
		return 0
	}
	return float64(stageOutcomes.failed[stage]) / float64(total)
}

// RecordScrapeAttempt counts one extraction attempt by outcome
// (success, retry, failed, duplicate).
func RecordScrapeAttempt(outcome string) {
	scrapeAttempts.WithLabelValues(outcome).Inc()
}

// RecordLLMRequest records a text generation request
func RecordLLMRequest(operation, status string, duration float64) {
	llmRequests.WithLabelValues(operation, status).Inc()
	llmRequestDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// UpdateActiveWorkers updates the active workers gauge
func UpdateActiveWorkers(count int) {
	activeWorkers.Set(float64(count))
}

// SetupMetricsEndpoint serves the default registry at GET /metrics
func SetupMetricsEndpoint(router *mux.Router) {
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
