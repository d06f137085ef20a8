package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pageCacheHits tracks page cache hits.
	pageCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cosmic_page_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	// pageCacheMisses tracks page cache misses.
	pageCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cosmic_page_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// pageCacheErrors tracks cache operation errors by operation.
	pageCacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosmic_page_cache_errors_total",
			Help: "Total number of page cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
