package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the scribeline service
type Metrics struct {
	// Signal monitor metrics
	WindowsClassified prometheus.Counter
	SpeechWindows     prometheus.Counter

	// Segmentation metrics
	ChunksEmitted prometheus.Counter
	ChunkBytes    prometheus.Histogram

	// Dispatch metrics
	DispatchAttempts  prometheus.Counter
	DispatchRetries   prometheus.Counter
	DispatchSuccesses prometheus.Counter
	DispatchFailures  prometheus.Counter

	// Offline queue metrics
	QueuedChunks prometheus.Counter
	QueueDepth   prometheus.Gauge
	QueueDrains  prometheus.Counter
}

// New creates and registers all metrics on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WindowsClassified: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_windows_classified_total",
			Help: "Total number of sample windows classified by the signal monitor",
		}),
		SpeechWindows: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_speech_windows_total",
			Help: "Total number of sample windows classified as speech",
		}),

		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_chunks_emitted_total",
			Help: "Total number of speech chunks finalized by the segmentation engine",
		}),
		ChunkBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribeline_chunk_size_bytes",
			Help:    "Size of finalized audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		DispatchAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_dispatch_attempts_total",
			Help: "Total number of provider transcription attempts",
		}),
		DispatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_dispatch_retries_total",
			Help: "Total number of retried transcription attempts",
		}),
		DispatchSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_dispatch_successes_total",
			Help: "Total number of chunks successfully transcribed",
		}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_dispatch_failures_total",
			Help: "Total number of chunks that exhausted every provider",
		}),

		QueuedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_queued_chunks_total",
			Help: "Total number of chunks stored in the offline queue",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribeline_queue_depth",
			Help: "Current number of chunks pending in the offline queue",
		}),
		QueueDrains: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribeline_queue_drains_total",
			Help: "Total number of offline queue drains",
		}),
	}
}
