package ingest

import (
	"ipdrexporter/internal/metrics"
	"time"
)

func (source *Source) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	// Read and clear
	lines := source.Metrics.LinesRead.Swap(0)
	submitted := source.Metrics.Submitted.Swap(0)
	rejected := source.Metrics.Rejected.Swap(0)

	recordTime := time.Now()

	add := func(name string, raw uint64, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   source.Namespace,
			Type:        metrics.Counter,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     "count",
				Interval: interval,
			},
		})
	}

	add("lines_read", lines, "Total lines read from the record source in the interval")
	add("records_submitted", submitted, "Records handed to the exporter in the interval")
	add("lines_rejected", rejected, "Lines that failed to parse or convert in the interval")
	return
}
