package exporter

import (
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/metrics"
	"strconv"
	"time"
)

type PeerStatus struct {
	Name         string `json:"name"`
	Addr         string `json:"addr"`
	Port         uint16 `json:"port"`
	State        string `json:"state"`
	Capabilities uint32 `json:"capabilities"`
	FramesSent   uint64 `json:"framesSent"`
	FramesRecv   uint64 `json:"framesReceived"`
}

type BindingStatus struct {
	Peer     string `json:"peer"`
	Priority int    `json:"priority"`
	State    string `json:"state"`
	LastAck  uint64 `json:"lastAck"`
}

type SessionStatus struct {
	ID          uint8           `json:"id"`
	Name        string          `json:"name"`
	Started     bool            `json:"started"`
	Stopped     bool            `json:"stopped"`
	Active      string          `json:"active,omitempty"`
	ConfigID    uint16          `json:"configId"`
	NextDSN     uint64          `json:"nextDsn"`
	Queued      uint64          `json:"queued"`
	Outstanding uint64          `json:"outstanding"`
	Lost        uint64          `json:"lost"`
	UsedMemory  uint64          `json:"usedMemory"`
	Bindings    []BindingStatus `json:"bindings"`
}

type Status struct {
	Peers    []PeerStatus    `json:"peers"`
	Sessions []SessionStatus `json:"sessions"`
}

// Point in time view of peers and sessions
func (exporter *Exporter) Status() (status Status) {
	for _, peer := range exporter.peers {
		entry := PeerStatus{
			Name:         peer.Name,
			Addr:         peer.Addr,
			Port:         peer.Port,
			State:        ConnDisconnected.String(),
			Capabilities: peer.Capabilities,
		}
		if conn := peer.conn; conn != nil {
			entry.State = conn.State.String()
			entry.FramesSent = conn.sent
			entry.FramesRecv = conn.received
		}
		status.Peers = append(status.Peers, entry)
	}

	for _, session := range exporter.sessions {
		entry := SessionStatus{
			ID:      session.ID,
			Name:    session.Name,
			Started: session.started,
			Stopped: session.stopped,
			NextDSN: session.nextDSN,
			Lost:    session.lost,
		}
		if session.active != nil {
			entry.Active = session.active.peer.Name
		}
		if tc := session.Context(); tc != nil {
			entry.ConfigID = tc.Templates.ConfigID
			entry.Queued = tc.Queue.Size()
			entry.Outstanding = tc.Queue.Outstanding()
			entry.UsedMemory = tc.Pool.UsedMemory()
		}
		for _, binding := range session.bindings {
			entry.Bindings = append(entry.Bindings, BindingStatus{
				Peer:     binding.peer.Name,
				Priority: binding.Priority,
				State:    binding.State.String(),
				LastAck:  binding.lastAck,
			})
		}
		status.Sessions = append(status.Sessions, entry)
	}
	return
}

// Exporter counters plus per session pool and queue metrics
func (exporter *Exporter) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	namespace := []string{global.NSExport}

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

	connected := uint64(0)
	for _, peer := range exporter.peers {
		if peer.conn != nil && peer.conn.State == ConnConnected {
			connected++
		}
	}

	add("sent", exporter.stats.sent, "count", metrics.Counter, "Data messages sent for the first time")
	add("resent", exporter.stats.resent, "count", metrics.Counter, "Data messages resent after failover")
	add("acked", exporter.stats.acked, "count", metrics.Counter, "Data messages retired by acknowledgment")
	add("selections", exporter.stats.selections, "count", metrics.Counter, "Active peer changes")
	add("send_failures", exporter.stats.sendFailures, "count", metrics.Counter, "Transport send failures")
	add("anomalies", exporter.stats.anomalies, "count", metrics.Counter, "Protocol anomalies detected")
	add("peers_connected", connected, "count", metrics.Gauge, "Peers with a connected link")
	exporter.stats = exporterStats{}

	for _, session := range exporter.sessions {
		tc := session.Context()
		if tc == nil {
			continue
		}
		namespace = []string{global.NSExport, global.NSSession, strconv.Itoa(int(session.ID))}
		add("lost", session.lost, "count", metrics.Gauge, "Records dropped by session teardown")
		add("next_dsn", session.nextDSN, "count", metrics.Gauge, "Sequence number of the next record")
		collection = append(collection, tc.Pool.CollectMetrics(interval)...)
		collection = append(collection, tc.Queue.CollectMetrics(interval)...)
	}
	return
}
