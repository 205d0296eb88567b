// Package metrics provides Prometheus metrics for the sync and answer
// pipelines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncDocumentsTotal counts per-document sync outcomes.
	// Labels: outcome (created, updated, unchanged, deleted, failed)
	SyncDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "braind",
			Subsystem: "sync",
			Name:      "documents_total",
			Help:      "Total number of documents processed per sync outcome",
		},
		[]string{"outcome"},
	)

	// SyncDuration tracks how long a full sync pass takes.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "braind",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of full sync passes in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// SyncRunsTotal counts sync passes by result.
	// Labels: result (success, error)
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "braind",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync passes",
		},
		[]string{"result"},
	)

	// EmbeddingBatchesTotal counts embedding batch calls.
	// Labels: result (success, error)
	EmbeddingBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "braind",
			Subsystem: "embeddings",
			Name:      "batches_total",
			Help:      "Total number of embedding batch requests",
		},
		[]string{"result"},
	)

	// RetrievalChunksReturned tracks how many chunks pass the similarity
	// threshold per query.
	RetrievalChunksReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "braind",
			Subsystem: "retrieval",
			Name:      "chunks_returned",
			Help:      "Number of chunks returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 10},
		},
	)

	// GenerationDuration tracks answer generation latency.
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "braind",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Duration of answer generation in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// WebhookMessagesTotal counts inbound webhook messages.
	// Labels: status (handled, ignored, rejected, error)
	WebhookMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "braind",
			Subsystem: "webhook",
			Name:      "messages_total",
			Help:      "Total number of inbound webhook messages by handling status",
		},
		[]string{"status"},
	)
)

// RecordSyncOutcome records one document's sync outcome.
func RecordSyncOutcome(outcome string) {
	SyncDocumentsTotal.WithLabelValues(outcome).Inc()
}

// RecordSyncRun records a completed sync pass.
func RecordSyncRun(duration time.Duration, err error) {
	SyncDuration.Observe(duration.Seconds())
	if err != nil {
		SyncRunsTotal.WithLabelValues("error").Inc()
		return
	}
	SyncRunsTotal.WithLabelValues("success").Inc()
}

// RecordEmbeddingBatch records the outcome of one embedding batch request.
func RecordEmbeddingBatch(err error) {
	if err != nil {
		EmbeddingBatchesTotal.WithLabelValues("error").Inc()
		return
	}
	EmbeddingBatchesTotal.WithLabelValues("success").Inc()
}

// RecordRetrieval records how many chunks a retrieval returned.
func RecordRetrieval(chunks int) {
	RetrievalChunksReturned.Observe(float64(chunks))
}

// RecordGeneration records answer generation latency.
func RecordGeneration(duration time.Duration) {
	GenerationDuration.Observe(duration.Seconds())
}

// RecordWebhookMessage records how an inbound webhook message was handled.
func RecordWebhookMessage(status string) {
	WebhookMessagesTotal.WithLabelValues(status).Inc()
}
