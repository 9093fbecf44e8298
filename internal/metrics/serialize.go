package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Converts internal metric type to export (JSON) metric
func (metric Metric) Convert() (out JMetric) {
	out.Name = metric.Name
	out.Description = metric.Description
	out.Namespace = strings.Join(metric.Namespace, "/")
	out.Type = string(metric.Type)
	out.Value.Unit = metric.Value.Unit
	out.Value.Interval = metric.Value.Interval.String()
	out.Value.Raw = fmt.Sprintf("%v", metric.Value.Raw)
	if !metric.Timestamp.IsZero() {
		out.Timestamp = metric.Timestamp.Format(time.RFC3339Nano)
	}
	return
}

// Converts a batch for JSON output
func ConvertAll(list []Metric) (out []JMetric) {
	out = make([]JMetric, 0, len(list))
	for _, metric := range list {
		out = append(out, metric.Convert())
	}
	return
}
