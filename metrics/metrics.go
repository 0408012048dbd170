package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedkit_feeds_generated_total",
		Help: "Total feeds generated",
	})
	FallbackFeeds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedkit_fallback_feeds_total",
		Help: "Total chronological fallback feeds served",
	})
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedkit_cache_hits_total",
		Help: "Total cache hits by cache kind",
	}, []string{"cache"})
	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedkit_cache_misses_total",
		Help: "Total cache misses by cache kind",
	}, []string{"cache"})
	ColdStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedkit_cold_starts_total",
		Help: "Total recommendation requests served via cold start",
	})
)

func init() {
	prometheus.MustRegister(FeedsGenerated, FallbackFeeds, CacheHits, CacheMisses, ColdStarts)
}
