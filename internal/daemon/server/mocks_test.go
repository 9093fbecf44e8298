package server

import (
	"context"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/metrics"
	"time"
)

func mockDiscoverer(results []metrics.Metric) Discoverer {
	return func(name, desc string, ns []string, unit string, mt metrics.MetricType) []metrics.Metric {
		return results
	}
}

func mockDataSearcher(results []metrics.Metric) DataSearcher {
	return func(name string, ns []string, start, end time.Time) []metrics.Metric {
		return results
	}
}

func mockAggregator(result metrics.Aggregation, err error) Aggregator {
	return func(name string, ns []string, start, end time.Time) (metrics.Aggregation, error) {
		return result, err
	}
}

func mockStatus(status exporter.Status, err error) StatusReporter {
	return func(ctx context.Context) (exporter.Status, error) {
		return status, err
	}
}
