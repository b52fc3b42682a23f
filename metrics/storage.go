package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Default service metrics for snapshot scraping and the snapshot cache.
type StorageMetrics struct {
	// Keys scraped from the node, partitioned by module.
	scrapedKeys *prometheus.CounterVec

	// Cache hit rates for the local cache.
	localCacheReads *prometheus.CounterVec

	// Snapshot cache write outcomes.
	localCacheWrites *prometheus.CounterVec
}

type CacheReadStatus string

const (
	CacheReadStatusHit      CacheReadStatus = "hit"
	CacheReadStatusMiss     CacheReadStatus = "miss"
	CacheReadStatusBadValue CacheReadStatus = "bad_value" // Value in cache was not valid (mismatched record version or CBOR encoding).
	CacheReadStatusError    CacheReadStatus = "error"     // Other internal error reading from cache.
)

// NewDefaultStorageMetrics creates Prometheus metric instrumentation
// for snapshot building.
func NewDefaultStorageMetrics() *StorageMetrics {
	m := &StorageMetrics{
		scrapedKeys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_scraped_keys",
				Help: "How many storage keys were scraped from the node, partitioned by module.",
			},
			[]string{"module"},
		),
		localCacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "local_cache_reads",
				Help: "How many local cache reads occur, partitioned by status (hit, miss, bad_value, error).",
			},
			[]string{"cache", "status"}, // Labels.
		),
		localCacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "local_cache_writes",
				Help: "How many local cache writes occur, partitioned by status.",
			},
			[]string{"cache", "status"},
		),
	}
	m.scrapedKeys = registerOnce(m.scrapedKeys)
	m.localCacheReads = registerOnce(m.localCacheReads)
	m.localCacheWrites = registerOnce(m.localCacheWrites)
	return m
}

// ScrapedKeys returns the counter of keys scraped for a module ("" for the whole state).
func (m *StorageMetrics) ScrapedKeys(module string) prometheus.Counter {
	if module == "" {
		module = "all"
	}
	return m.scrapedKeys.WithLabelValues(module)
}

// LocalCacheReads returns the counter for the local cache read.
func (m *StorageMetrics) LocalCacheReads(cache string, status CacheReadStatus) prometheus.Counter {
	return m.localCacheReads.WithLabelValues(cache, string(status))
}

// LocalCacheWrites returns the counter for the local cache write.
func (m *StorageMetrics) LocalCacheWrites(cache string, ok bool) prometheus.Counter {
	status := "ok"
	if !ok {
		status = "error"
	}
	return m.localCacheWrites.WithLabelValues(cache, status)
}
