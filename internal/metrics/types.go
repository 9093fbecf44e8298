package metrics

import (
	"sync"
	"time"
)

// Time sliced metric storage
type Registry struct {
	mutex  sync.RWMutex
	slices map[time.Time]map[string]map[string]Metric // slice -> namespace -> name
}

type MetricType string

const (
	Counter MetricType = "counter" // reset each interval
	Gauge   MetricType = "gauge"   // point in time value
	Summary MetricType = "summary" // aggregate over interval
)

// Anything that reports metrics for a collection interval
type Collector interface {
	CollectMetrics(interval time.Duration) []Metric
}

// Single recorded value
type Metric struct {
	Name        string // e.g. used_memory, outstanding
	Description string
	Namespace   []string // e.g. "Exporter/Session/1/Pool"
	Value       MetricValue
	Type        MetricType
	Timestamp   time.Time
}

type MetricValue struct {
	Raw      interface{} // uint64, int64, float64
	Unit     string      // e.g. "bytes", "count"
	Interval time.Duration
}

// Numeric summary of a metric over a time window
type Aggregation struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// JSON version
type JMetric struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Namespace   string       `json:"namespace"`
	Value       JMetricValue `json:"value"`
	Type        string       `json:"type"`
	Timestamp   string       `json:"timestamp"`
}

type JMetricValue struct {
	Raw      string `json:"raw"`
	Unit     string `json:"unit"`
	Interval string `json:"interval"`
}
