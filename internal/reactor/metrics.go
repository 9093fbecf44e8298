package reactor

import (
	"ipdrexporter/internal/metrics"
	"time"
)

// Loop counters plus the mailbox queue metrics. Safe off the loop goroutine.
func (loop *Loop) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw interface{}, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   loop.namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("handled", loop.stats.handled.Swap(0), "count", metrics.Counter, "Mailbox functions run in the interval")
	add("timers_fired", loop.stats.fired.Swap(0), "count", metrics.Counter, "Timer callbacks run in the interval")
	add("timers_cancelled", loop.stats.cancelled.Swap(0), "count", metrics.Counter, "Timers cancelled in the interval")
	add("panics", loop.stats.panics.Swap(0), "count", metrics.Counter, "Callbacks that panicked in the interval")
	add("timers_pending", loop.stats.pending.Load(), "count", metrics.Gauge, "Timers currently scheduled")

	collection = append(collection, loop.mailbox.CollectMetrics(interval)...)
	return
}
