package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics exposed on /metrics
var (
	// Store metrics
	AppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubecostd_store_appends_total",
			Help: "Total number of records appended to partitions",
		},
		[]string{"kind", "granularity", "status"},
	)

	MalformedLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubecostd_store_malformed_lines_total",
			Help: "Total number of partition lines skipped because they could not be parsed",
		},
		[]string{"kind", "granularity"},
	)

	PartitionsScanned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubecostd_store_partitions_scanned",
			Help:    "Number of partition files opened per range read",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
		[]string{"kind", "granularity"},
	)

	// Rollup metrics
	RollupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubecostd_rollups_total",
			Help: "Total number of rollup windows processed",
		},
		[]string{"kind", "granularity", "result"}, // result: appended/no_data/error/skipped
	)

	// Retention metrics
	PartitionsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubecostd_retention_partitions_deleted_total",
			Help: "Total number of partition files removed by retention",
		},
		[]string{"kind", "granularity"},
	)

	PartitionDeleteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubecostd_retention_delete_errors_total",
			Help: "Total number of partition files that could not be archived or removed",
		},
		[]string{"kind", "granularity"},
	)

	// Collection metrics
	SamplesCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubecostd_samples_collected_total",
			Help: "Total number of samples fetched from the cluster",
		},
		[]string{"kind"},
	)

	CollectionErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubecostd_collection_errors_total",
			Help: "Total number of collection failures, source errors and failed appends alike",
		},
	)

	CollectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kubecostd_collection_duration_seconds",
			Help:    "Collection tick duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// Query metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubecostd_query_duration_seconds",
			Help:    "Query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	GranularityFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubecostd_query_granularity_fallbacks_total",
			Help: "Total number of queries served at a different granularity than requested",
		},
		[]string{"requested", "served"},
	)

	// API metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubecostd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
