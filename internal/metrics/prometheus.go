// Package metrics provides Prometheus metrics for the reasoning framework,
// the abstraction layers and the semantic cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "reasoncache"
)

// LatencyBuckets defines histogram buckets for in-process operation latency (in seconds).
var LatencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
	0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// ConfidenceBuckets covers the [0,1] confidence range.
var ConfidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// =============================================================================
// Reasoning Metrics
// =============================================================================

var (
	// ReasoningRequests counts reason calls by outcome of the cache lookup.
	ReasoningRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_requests_total",
			Help:      "Total number of reasoning requests",
		},
		[]string{"strategy", "layer", "cache"}, // cache: hit, miss, skip
	)

	// ReasoningFailures counts reason calls rejected or failed, by error type.
	ReasoningFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_failures_total",
			Help:      "Total number of failed reasoning requests",
		},
		[]string{"error_type"},
	)

	// ReasoningConfidence tracks produced confidences per strategy.
	ReasoningConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reasoning_confidence",
			Help:      "Confidence of computed reasoning results",
			Buckets:   ConfidenceBuckets,
		},
		[]string{"strategy"},
	)

	// HierarchicalRequests counts cross-layer reasoning calls.
	HierarchicalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hierarchical_requests_total",
			Help:      "Total number of cross-layer reasoning requests",
		},
		[]string{"strategy"},
	)

	// ReasoningCacheEntries tracks the reasoning cache population.
	ReasoningCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reasoning_cache_entries",
			Help:      "Current number of reasoning cache entries",
		},
	)
)

// =============================================================================
// Layer Metrics
// =============================================================================

var (
	// LayerProcessed counts layer processing calls.
	LayerProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_processed_total",
			Help:      "Total number of records processed per abstraction layer",
		},
		[]string{"layer", "cache"}, // cache: hit, miss
	)

	// LayerEncryptionFailures counts sensitive records processed without encryption.
	LayerEncryptionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_encryption_failures_total",
			Help:      "Total number of sensitive records that could not be encrypted",
		},
		[]string{"layer"},
	)
)

// =============================================================================
// Semantic Cache Metrics
// =============================================================================

var (
	// SemanticCacheLookups counts retrieve calls by the path that answered them.
	SemanticCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_cache_lookups_total",
			Help:      "Total semantic cache lookups by resolution path",
		},
		[]string{"path"}, // path: key, context, vector, miss
	)

	// SemanticCacheRemovals counts removed entries by reason.
	SemanticCacheRemovals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_cache_removals_total",
			Help:      "Total semantic cache entries removed",
		},
		[]string{"reason"}, // reason: invalidate, expire, evict, replace
	)

	// SemanticCacheStores counts store calls.
	SemanticCacheStores = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_cache_stores_total",
			Help:      "Total semantic cache store operations",
		},
	)

	// SemanticCacheEntries tracks the current entry count.
	SemanticCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "semantic_cache_entries",
			Help:      "Current number of semantic cache entries",
		},
	)

	// SemanticCacheSizeBytes tracks the estimated size of all entries.
	SemanticCacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "semantic_cache_size_bytes",
			Help:      "Estimated size of all semantic cache entries in bytes",
		},
	)

	// SnapshotWrites counts snapshot persistence attempts.
	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Total semantic cache snapshot writes",
		},
		[]string{"backend", "status"}, // status: success, error, throttled
	)

	// CircuitBreakerState tracks the breakers guarding the embedder and
	// the snapshot store.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)
)

// =============================================================================
// Operation Timers
// =============================================================================

var (
	// OperationDuration tracks timed operations reported by the performance monitor.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of timed operations in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"operation"},
	)
)
