package metrics

import "github.com/prometheus/client_golang/prometheus"

// Remote engine and orchestration metrics.
var (
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilifed",
			Name:      "remote_requests_total",
			Help:      "Requests sent to the search engine",
		},
		[]string{"method", "route", "status"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meilifed",
			Name:      "remote_request_duration_seconds",
			Help:      "Search engine request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	BatchDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilifed",
			Name:      "batch_documents_total",
			Help:      "Documents flushed per index",
		},
		[]string{"index"},
	)

	BatchFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilifed",
			Name:      "batch_flushes_total",
			Help:      "Per-index batch uploads by status",
		},
		[]string{"status"}, // "success" / "error"
	)

	ProvisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilifed",
			Name:      "provision_total",
			Help:      "Remote index provisioning outcomes",
		},
		[]string{"outcome"}, // "found" / "created" / "timeout" / "failed"
	)

	MergedHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilifed",
			Name:      "merged_hits_total",
			Help:      "Hits returned by merged group searches",
		},
		[]string{"group"},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilifed",
			Name:      "search_cache_total",
			Help:      "Search response cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss" / "error"
	)
)

func remoteCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		RemoteRequestsTotal,
		RemoteRequestDuration,
		BatchDocumentsTotal,
		BatchFlushesTotal,
		ProvisionTotal,
		MergedHitsTotal,
		SearchCacheTotal,
	}
}
