package bufpool

import (
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/metrics"
	"time"
)

// Snapshot of pool gauges and interval counters (counters reset)
func (pool *Pool) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	namespace := append(append([]string(nil), pool.config.Namespace...), global.NSPool)
	recordTime := time.Now()

	add := func(name string, raw interface{}, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("used_memory", pool.usedMemory, "bytes", metrics.Gauge, "Bytes sub-allocated to messages")
	add("allocated_memory", pool.allocatedMemory, "bytes", metrics.Gauge, "Bytes held by pool chunks")
	add("used_chunks", uint64(pool.usedChunks), "count", metrics.Gauge, "Chunks holding live data")
	add("free_chunks", uint64(pool.freeChunks), "count", metrics.Gauge, "Empty chunks kept for reuse")
	add("chunk_size", uint64(pool.chunkSize), "bytes", metrics.Gauge, "Size used for new chunks")
	add("allocations", pool.stats.allocations, "count", metrics.Counter, "Successful allocations in the interval")
	add("releases", pool.stats.releases, "count", metrics.Counter, "Successful releases in the interval")
	add("chunk_creations", pool.stats.growths, "count", metrics.Counter, "Chunks created in the interval")
	add("chunk_evictions", pool.stats.evictions, "count", metrics.Counter, "Free chunks dropped for a larger chunk size in the interval")
	add("allocation_failures", pool.stats.failures, "count", metrics.Counter, "Allocations refused by the memory cap in the interval")

	pool.stats = poolStats{}
	return
}
