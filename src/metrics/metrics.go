package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache Metrics
var (
	// CacheRequestsTotal tracks GetData calls by outcome (hit/miss/forced)
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charthub_cache_requests_total",
			Help: "Snapshot requests by outcome (hit, miss, forced)",
		},
		[]string{"outcome"},
	)

	// FetchesTotal tracks source fetches by result
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charthub_fetches_total",
			Help: "Source fetches by result (success, error, timeout)",
		},
		[]string{"result"},
	)

	// FetchDuration tracks source fetch latency in seconds
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "charthub_fetch_duration_seconds",
			Help:    "Source fetch duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
	)

	// FallbacksTotal tracks how often the placeholder snapshot was served
	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "charthub_fallbacks_total",
			Help: "Fallback snapshots produced after a failed fetch with no prior data",
		},
	)

	// SnapshotCharts tracks the number of charts in the current snapshot
	SnapshotCharts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "charthub_snapshot_charts",
			Help: "Number of charts in the current snapshot",
		},
	)
)

// Connection Metrics
var (
	// ConnectionsCurrent tracks registered hub connections
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "charthub_connections_current",
			Help: "Current number of registered connections",
		},
	)

	// ConnectionsTotal tracks connections ever joined
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "charthub_connections_total",
			Help: "Total connections joined",
		},
	)

	// BroadcastsTotal tracks data broadcasts
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "charthub_broadcasts_total",
			Help: "Total snapshot broadcasts",
		},
	)

	// SendFailuresTotal tracks failed sends, each of which prunes a connection
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "charthub_send_failures_total",
			Help: "Failed sends that removed a connection from the registry",
		},
	)

	// MessagesReceived tracks inbound protocol messages by type
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charthub_messages_received_total",
			Help: "Inbound protocol messages by type (requestData, ping, invalid)",
		},
		[]string{"type"},
	)
)
