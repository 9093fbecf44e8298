// Central registry for time sliced metrics from pools, queues and sessions
package metrics

import (
	"strings"
	"time"
)

// Creates new metric registry storage
func New() (registry *Registry) {
	registry = &Registry{
		slices: make(map[time.Time]map[string]map[string]Metric),
	}
	return
}

// Stores a batch under the interval slice containing now. Returns the slice key.
func (registry *Registry) Record(now time.Time, interval time.Duration, batch []Metric) (slice time.Time) {
	slice = now
	if interval > 0 {
		slice = now.Truncate(interval)
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	namespaces := registry.slices[slice]
	if namespaces == nil {
		namespaces = make(map[string]map[string]Metric)
		registry.slices[slice] = namespaces
	}
	for _, metric := range batch {
		namespace := strings.Join(metric.Namespace, "/")
		if namespaces[namespace] == nil {
			namespaces[namespace] = make(map[string]Metric)
		}
		namespaces[namespace][metric.Name] = metric
	}
	return
}

// Collects from every collector and records the combined batch
func (registry *Registry) Gather(now time.Time, interval time.Duration, collectors ...Collector) (count int) {
	var batch []Metric
	for _, collector := range collectors {
		if collector == nil {
			continue
		}
		batch = append(batch, collector.CollectMetrics(interval)...)
	}
	registry.Record(now, interval, batch)
	count = len(batch)
	return
}

// Deletes slices older than maxAge relative to now
func (registry *Registry) Prune(now time.Time, maxAge time.Duration) (removed int) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	for slice := range registry.slices {
		if now.Sub(slice) > maxAge {
			delete(registry.slices, slice)
			removed++
		}
	}
	return
}
