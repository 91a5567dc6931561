package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediaqueue",
		Name:      "active_jobs",
		Help:      "Number of media jobs currently being processed.",
	})

	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "jobs_total",
		Help:      "Total number of media jobs by terminal status.",
	}, []string{"status"})

	ItemsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "items_processed_total",
		Help:      "Total number of media items processed by type.",
	}, []string{"type"})

	ItemsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "items_skipped_total",
		Help:      "Total number of items skipped because a prior attempt completed them.",
	})

	EncodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediaqueue",
		Name:      "encode_duration_seconds",
		Help:      "Duration of encoder invocations in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediaqueue",
		Name:      "download_duration_seconds",
		Help:      "Time taken to download originals from blob storage.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120},
	})

	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediaqueue",
		Name:      "upload_duration_seconds",
		Help:      "Time taken to upload derived artifacts to blob storage.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120},
	})

	CallbackPostsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "callback_posts_total",
		Help:      "Total outbound callback posts by kind.",
	}, []string{"kind"})

	CallbackErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "callback_errors_total",
		Help:      "Total failed callback posts.",
	})

	ProgressStoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "progress_store_errors_total",
		Help:      "Total progress store read/write failures (swallowed).",
	})

	CleanupErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "cleanup_errors_total",
		Help:      "Total scratch directory cleanup failures.",
	})

	QueueRequeuesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "queue_requeues_total",
		Help:      "Total jobs returned to the queue after a failed attempt.",
	})

	QueueDeadLetterTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediaqueue",
		Name:      "queue_dead_letter_total",
		Help:      "Total jobs moved to the dead-letter list after exhausting attempts.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ActiveJobs,
		JobsTotal,
		ItemsProcessedTotal,
		ItemsSkippedTotal,
		EncodeDuration,
		DownloadDuration,
		UploadDuration,
		CallbackPostsTotal,
		CallbackErrorsTotal,
		ProgressStoreErrors,
		CleanupErrorsTotal,
		QueueRequeuesTotal,
		QueueDeadLetterTotal,
	)
}
