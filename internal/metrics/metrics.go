package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "btcsentinel"

var (
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Source attempts made by the resolver, by outcome.",
		},
		[]string{"source", "outcome"},
	)

	// SourceHealth is 2 for available, 1 for degraded and 0 for unavailable.
	SourceHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_health",
			Help:      "Last observed health of each source.",
		},
		[]string{"source"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache service lookups, by key class and result.",
		},
		[]string{"class", "result"},
	)

	StoreRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_rows_total",
			Help:      "Rows handled by the year store upsert, by result.",
		},
		[]string{"result"},
	)

	ResolverStitches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_stitch_total",
			Help:      "Trailing-gap stitches appended onto cached history.",
		},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions, by job and status.",
		},
		[]string{"job", "status"},
	)
)
