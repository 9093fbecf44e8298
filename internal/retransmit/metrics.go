package retransmit

import (
	"ipdrexporter/internal/metrics"
	"time"
)

func (queue *Queue) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw interface{}, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   queue.namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("depth", queue.size, "count", metrics.Gauge, "Messages waiting for acknowledgment or first send")
	add("outstanding", queue.outstanding, "count", metrics.Gauge, "Messages sent and not yet acknowledged")
	add("pushed", queue.stats.pushed, "count", metrics.Counter, "Messages queued in the interval")
	add("sent", queue.stats.peeked, "count", metrics.Counter, "Messages handed out for sending in the interval")
	add("retired", queue.stats.removed, "count", metrics.Counter, "Messages removed in the interval")
	add("sequence_anomalies", queue.stats.anomalies, "count", metrics.Counter, "Acknowledgments outside the comparable window in the interval")

	queue.stats = queueStats{}
	return
}
