// Package metrics exposes Prometheus instruments for passes, jobs, AI
// calls and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "order_mail"

var (
	// MessagesTotal counts messages by outcome: processed, skipped, failed
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages handled by ingestion passes",
		},
		[]string{"outcome"},
	)

	// ClassificationsTotal counts classifier verdicts by content type
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifier verdicts by content type",
		},
		[]string{"type"},
	)

	// PassDuration is the wall time of one ingestion pass
	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of ingestion passes in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
	)

	// JobsTotal counts finished jobs by status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by status",
		},
		[]string{"status"},
	)

	// ExtractionsTotal counts extractions by type and whether the fallback was used
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Structured extractions by type and result",
		},
		[]string{"type", "result"},
	)

	// AICallDuration is the latency of provider calls
	AICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_call_duration_seconds",
			Help:      "AI provider call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
		},
		[]string{"provider", "status"},
	)

	// HTTPRequestDuration is the latency of API requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// IncrementMessage records one message outcome
func IncrementMessage(outcome string) {
	MessagesTotal.WithLabelValues(outcome).Inc()
}

// IncrementClassification records one classifier verdict
func IncrementClassification(contentType string) {
	ClassificationsTotal.WithLabelValues(contentType).Inc()
}

// RecordPassDuration records the length of a finished pass
func RecordPassDuration(d time.Duration) {
	PassDuration.Observe(d.Seconds())
}

// IncrementJob records a finished job
func IncrementJob(status string) {
	JobsTotal.WithLabelValues(status).Inc()
}

// IncrementExtraction records one extraction. result is "extracted" or "fallback".
func IncrementExtraction(contentType, result string) {
	ExtractionsTotal.WithLabelValues(contentType, result).Inc()
}

// RecordAICall records the latency of one provider call
func RecordAICall(provider, status string, d time.Duration) {
	AICallDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

// RecordHTTPRequest records the latency of one API request
func RecordHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
