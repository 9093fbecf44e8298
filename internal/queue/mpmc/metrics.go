package mpmc

import (
	"ipdrexporter/internal/metrics"
	"sync/atomic"
	"time"
)

// Subtracts one without wrapping below zero
func decrement(value *atomic.Uint64) {
	for {
		current := value.Load()
		if current == 0 {
			return
		}
		if value.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func (queue *Queue[T]) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw interface{}, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   queue.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	stats := &queue.Metrics
	add("depth", stats.Depth.Load(), "count", metrics.Gauge, "Current number of items in the queue")
	add("capacity", uint64(queue.Size), "count", metrics.Gauge, "Fixed queue capacity")
	add("push_attempts", stats.PushAttempts.Swap(0), "count", metrics.Counter, "Total push attempts in the interval")
	add("push_success", stats.PushSuccess.Swap(0), "count", metrics.Counter, "Push attempts that succeeded in the interval")
	add("push_full", stats.PushFull.Swap(0), "count", metrics.Counter, "Push attempts rejected because the queue was full")
	add("push_cas_retries", stats.PushCASRetries.Swap(0)+stats.PushSeqAhead.Swap(0), "count", metrics.Counter, "Push retries in the interval")
	add("pop_attempts", stats.PopAttempts.Swap(0), "count", metrics.Counter, "Total pop attempts in the interval")
	add("pop_success", stats.PopSuccess.Swap(0), "count", metrics.Counter, "Pop attempts that succeeded in the interval")
	add("pop_empty", stats.PopEmpty.Swap(0), "count", metrics.Counter, "Pop attempts that found the queue empty")
	add("pop_wait_signals", stats.PopWaitSignals.Swap(0), "count", metrics.Counter, "Consumer wakeups from producers")
	add("pop_cas_retries", stats.PopCASRetries.Swap(0)+stats.PopSeqBehind.Swap(0), "count", metrics.Counter, "Pop retries in the interval")
	return
}
