// Package metrics defines the Prometheus instruments for the storage layer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StoreCallsTotal counts calls into the event store by operation and outcome.
	StoreCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locus_store_calls_total",
			Help: "Total number of event store calls",
		},
		[]string{"op", "outcome"},
	)

	// StoreCallDuration observes event store call latency by operation.
	StoreCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "locus_store_call_duration_seconds",
			Help:    "Duration of event store calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// CacheRequestsTotal counts cache lookups by result (hit, miss, expired).
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locus_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"result"},
	)

	// BatchItemsTotal counts processed batch items by entity type and outcome.
	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locus_batch_items_total",
			Help: "Total number of batch items processed",
		},
		[]string{"entity_type", "outcome"},
	)
)

// Register registers all metrics with the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		StoreCallsTotal,
		StoreCallDuration,
		CacheRequestsTotal,
		BatchItemsTotal,
	)
}
