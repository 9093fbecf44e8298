package tcp

import (
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/metrics"
	"time"
)

// Totals since start, plus the open connection count
func (transport *Transport) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	namespace := []string{global.NSTransport}

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

	add("connections_open", uint64(transport.Open()), "count", metrics.Gauge, "Connections dialing or established")
	add("dials", transport.Metrics.Dials.Load(), "count", metrics.Counter, "Dial attempts")
	add("dial_failures", transport.Metrics.DialFailures.Load(), "count", metrics.Counter, "Failed dial attempts")
	add("frames_sent", transport.Metrics.FramesSent.Load(), "count", metrics.Counter, "Frames written to peers")
	add("bytes_sent", transport.Metrics.BytesSent.Load(), "bytes", metrics.Counter, "Bytes written to peers")
	add("frames_received", transport.Metrics.FramesRecv.Load(), "count", metrics.Counter, "Frames read from peers")
	add("bytes_received", transport.Metrics.BytesRecv.Load(), "bytes", metrics.Counter, "Bytes read from peers")
	add("outbox_full", transport.Metrics.OutboxFull.Load(), "count", metrics.Counter, "Sends refused because the outbound queue was full")
	add("write_failures", transport.Metrics.WriteFailures.Load(), "count", metrics.Counter, "Socket writes that failed")
	return
}
