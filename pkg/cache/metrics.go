package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readwise_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"backend"}, // "sqlite", "redis", "memory"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readwise_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"backend"},
	)

	// CacheWrites tracks entries written (existing keys are not counted)
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readwise_cache_writes_total",
			Help: "Total number of page responses stored in the cache",
		},
		[]string{"backend"},
	)

	// CacheSize tracks bytes written to the cache during this run
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "readwise_cache_size_bytes",
			Help: "Bytes of page responses written to the cache in this run",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readwise_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "open"
	)
)
