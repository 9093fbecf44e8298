package server

import (
	"context"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/metrics"
	"time"
)

type httpLogWriter struct {
	ctx context.Context
}

type Jerror struct {
	Msg string `json:"error"`
}

type DataSearcher func(name string, namespacePrefix []string, start, end time.Time) []metrics.Metric
type Discoverer func(name, description string, namespacePrefix []string, unit string, metricType metrics.MetricType) []metrics.Metric
type Aggregator func(name string, namespacePrefix []string, start, end time.Time) (metrics.Aggregation, error)

// Snapshot of exporter state, taken on the event loop
type StatusReporter func(ctx context.Context) (exporter.Status, error)

// Query handlers wired by the daemon. Nil handlers answer 404.
type Handlers struct {
	Search    DataSearcher
	Discover  Discoverer
	Aggregate Aggregator
	Status    StatusReporter
}
