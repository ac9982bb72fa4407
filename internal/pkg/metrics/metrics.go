// Package metrics provides Prometheus metrics for the plugin registry (HTTP RED, registry
// queries, platform calls, and the discovery/approval pipeline).
// All metrics are registered with the default registry via promauto and scraped on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plugin_registry"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// DBQueryDurationSeconds times registry queries by operation.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Registry query duration in seconds by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	// PlatformRequestsTotal counts source platform API calls.
	// status is the HTTP status code, or "error" for transport failures.
	PlatformRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "requests_total",
			Help:      "Total number of source platform requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	// DiscoveryCyclesTotal counts discovery cycles by outcome.
	// outcome: ok | failed
	DiscoveryCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "cycles_total",
			Help:      "Total number of discovery cycles by outcome.",
		},
		[]string{"outcome"},
	)

	// DiscoveredTotal counts search results by classification.
	// classification: admitted | discarded | pending | cached | enriched | failed
	DiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "items_total",
			Help:      "Total number of discovered repositories by classification.",
		},
		[]string{"classification"},
	)

	// EnrichmentsTotal counts enrichments by trigger.
	// trigger: poll | approval
	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Total number of plugin enrichments by trigger.",
		},
		[]string{"trigger"},
	)

	// EnrichmentDurationSeconds is the end-to-end enrichment latency.
	EnrichmentDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Plugin enrichment duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// NotificationsTotal counts pending-approval notifications by outcome.
	// outcome: sent | failed
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "notifications_total",
			Help:      "Total number of pending-approval notifications by outcome.",
		},
		[]string{"outcome"},
	)

	// ApprovalDecisionsTotal counts reviewer decisions by action and outcome.
	// outcome: applied | unknown | failed
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Total number of approval decisions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// CacheEntries is the current number of plugins in the serving cache.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of enriched plugins in the serving cache.",
		},
	)

	// CacheClearsTotal counts periodic serving cache clears.
	CacheClearsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_clears_total",
			Help:      "Total number of serving cache clears.",
		},
	)
)
