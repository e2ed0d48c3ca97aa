// Package prometheus provides Prometheus metrics for the TTS dispatch layer.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voxkit"

var (
	// synthesisDuration is a histogram of end-to-end synthesis duration.
	synthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of synthesis operations in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	// attemptsTotal is a counter of individual adapter call attempts,
	// including retried ones.
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_attempts_total",
			Help:      "Total adapter call attempts, including retries",
		},
		[]string{"provider", "operation", "status"}, // status: success, error
	)

	// retryExhaustedTotal is a counter of operations that spent their
	// whole retry budget without succeeding.
	retryExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Operations that exhausted their retry budget",
		},
		[]string{"provider", "operation"},
	)

	// sessionsActive is a gauge of open streaming sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streaming_sessions_active",
			Help:      "Number of open streaming sessions",
		},
	)

	// sessionsTotal counts finished streaming sessions by outcome.
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streaming_sessions_total",
			Help:      "Total finished streaming sessions",
		},
		[]string{"provider", "outcome"}, // outcome: closed, errored, cancelled
	)

	// batchItemsTotal counts batch items by outcome.
	batchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Total batch synthesis items",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// audioBytesTotal counts synthesized audio volume.
	audioBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total synthesized audio bytes returned to callers",
		},
		[]string{"provider"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		synthesisDuration,
		attemptsTotal,
		retryExhaustedTotal,
		sessionsActive,
		sessionsTotal,
		batchItemsTotal,
		audioBytesTotal,
	}
)

// statusLabel converts a success flag to the shared status label value.
func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordSynthesisDuration records an end-to-end operation duration.
func RecordSynthesisDuration(provider, operation string, durationSeconds float64) {
	synthesisDuration.WithLabelValues(provider, operation).Observe(durationSeconds)
}

// RecordAttempt records one adapter call attempt.
func RecordAttempt(provider, operation string, success bool) {
	attemptsTotal.WithLabelValues(provider, operation, statusLabel(success)).Inc()
}

// RecordRetryExhausted records an operation whose retry budget ran out.
func RecordRetryExhausted(provider, operation string) {
	retryExhaustedTotal.WithLabelValues(provider, operation).Inc()
}

// RecordSessionStart records a streaming session opening.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a streaming session reaching a terminal state.
func RecordSessionEnd(provider, outcome string) {
	sessionsActive.Dec()
	sessionsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordBatchItem records one batch item outcome.
func RecordBatchItem(provider string, success bool) {
	batchItemsTotal.WithLabelValues(provider, statusLabel(success)).Inc()
}

// RecordAudioBytes records synthesized audio volume.
func RecordAudioBytes(provider string, n int) {
	audioBytesTotal.WithLabelValues(provider).Add(float64(n))
}
