package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesStarted tracks accepted batches
	BatchesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uploader_batches_started_total",
			Help: "Total number of batches accepted for processing",
		},
	)

	// BatchesFinished tracks batches reaching a terminal status
	BatchesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_batches_finished_total",
			Help: "Total number of batches reaching a terminal status",
		},
		[]string{"status"},
	)

	// ItemsProcessed tracks per-item terminal outcomes
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_items_processed_total",
			Help: "Total number of items reaching a terminal status",
		},
		[]string{"status"},
	)

	// UpstreamCalls tracks metadata-generation calls by outcome
	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_upstream_calls_total",
			Help: "Total number of metadata-generation calls",
		},
		[]string{"outcome"},
	)

	// UpstreamRetries tracks retries by classified failure kind
	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_upstream_retries_total",
			Help: "Total number of retried metadata-generation calls",
		},
		[]string{"kind"},
	)

	// ItemDuration tracks wall time per processed item
	ItemDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uploader_item_duration_seconds",
			Help:    "Time spent processing one item, retries included",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RateRejections tracks origin-rate and session-quota rejections
	RateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_rate_rejections_total",
			Help: "Total number of requests rejected by rate or quota limits",
		},
		[]string{"scope"},
	)

	// ActiveBatches tracks batches not yet swept
	ActiveBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "uploader_active_batches",
			Help: "Number of batches currently held in memory",
		},
	)

	// ActiveSessions tracks sessions not yet swept
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "uploader_active_sessions",
			Help: "Number of sessions currently held in memory",
		},
	)
)
