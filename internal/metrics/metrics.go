// Package metrics exposes the engine's Prometheus collectors. Everything is
// registered on the default registry and served from the API's /metrics
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssetsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_assets_uploaded_total",
		Help: "Assets uploaded with a durable record written.",
	})

	UploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_upload_failures_total",
		Help: "Upload attempts that ended requeued, by reason.",
	})

	UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shuttle_upload_duration_seconds",
		Help:    "Wall time of successful upload attempts.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shuttle_active_workers",
		Help: "Workers currently set up and polling.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shuttle_queue_depth",
		Help: "Envelopes waiting in the job queue.",
	})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_broadcast_failures_total",
		Help: "Snapshot deliveries that failed and unsubscribed the observer.",
	})
)
