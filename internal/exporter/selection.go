package exporter

import (
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/pkg/protocol"
	"time"
)

// Pushes the session's templates to the peer and waits for the final ack.
// A missing ack within the timeout drops the peer connection.
func (exporter *Exporter) initiate(binding *Binding) {
	session := binding.session
	conn := binding.peer.conn
	if session.stopped || conn == nil || conn.State != ConnConnected {
		return
	}
	if session.active == binding {
		session.active = nil
	}

	set := session.Context().Templates
	binding.State = BindingInitiating
	binding.pendingConfig = set.ConfigID

	ok := exporter.sendControl(conn, session.ID, protocol.TemplateData{
		ConfigID:  set.ConfigID,
		Templates: set.Blocks(),
	})
	if !ok {
		return
	}

	id := conn.ID
	exporter.arm(&binding.initTimer, exporter.tuning.TemplateAckTimeout, func() {
		if binding.State != BindingInitiating || conn.ID != id || conn.State != ConnConnected {
			return
		}
		exporter.anomaly(map[string]any{"peer": binding.peer.Name, "session": session.ID},
			"peer %s did not acknowledge templates for session %d within %s\n",
			binding.peer.Name, session.ID, exporter.tuning.TemplateAckTimeout)
		exporter.dropConnection(conn, "template acknowledgment timeout")
	})
}

// Picks the lowest priority selectable binding (first seen wins ties)
// and fails over to it when it differs from the current active one
func (exporter *Exporter) selectActive(session *Session) {
	if session.stopped || !session.started {
		return
	}

	var best *Binding
	for _, binding := range session.bindings {
		if !binding.selectable() {
			continue
		}
		if best == nil || binding.Priority < best.Priority {
			best = binding
		}
	}

	current := session.active
	if best == current {
		return
	}

	if current != nil {
		session.active = nil
		if current.State == BindingActive {
			current.State = BindingReady
			exporter.sendControl(current.peer.conn, session.ID, sessionStop(protocol.ReasonHandOver))
		}
		// a failed stop may already have reselected
		if session.active != nil || (best != nil && !best.selectable()) {
			return
		}
	}

	if best == nil {
		logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.WarnLog,
			"session %d has no available peer, %d records held\n", session.ID, session.Context().Queue.Size())
		return
	}
	exporter.activate(session, best)
}

// Makes binding the active peer: rollback, mark for retransmit, announce, stream
func (exporter *Exporter) activate(session *Session, binding *Binding) {
	tc := session.Context()
	if !binding.templatesSet || binding.ackedConfig != tc.Templates.ConfigID {
		// peer has not seen the current configuration yet
		exporter.initiate(binding)
		return
	}

	queue := tc.Queue
	session.duplicates += queue.Outstanding()
	if session.duplicates > queue.Size() {
		session.duplicates = queue.Size()
	}
	queue.Rollback()
	session.retransmit = true

	binding.State = BindingActive
	session.active = binding
	exporter.stats.selections++

	first := session.nextDSN
	if head := tc.Pool.First(); !head.IsNull() {
		first = protocol.DataDSN(tc.Pool.Message(head))
	}
	ok := exporter.sendControl(binding.peer.conn, session.ID, protocol.SessionStart{
		ExporterBootTime:          exporter.bootTime,
		FirstRecordSequenceNumber: first,
		DroppedRecordCount:        session.lost,
		Primary:                   true,
		AckTimeInterval:           uint32(exporter.tuning.AckTimeInterval / time.Millisecond),
		AckSequenceInterval:       exporter.tuning.AckSequenceInterval,
		DocumentID:                session.documentID,
	})
	if !ok {
		return
	}

	logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.InfoLog,
		"session %d now streaming to peer %s (priority %d), %d records queued\n",
		session.ID, binding.peer.Name, binding.Priority, queue.Size())
	exporter.sink.Emit(global.InfoLog, events.PeerSelected, map[string]any{
		"session":  session.ID,
		"peer":     binding.peer.Name,
		"priority": binding.Priority,
		"queued":   queue.Size(),
	})
	exporter.pump(session)
}

// Sends queued messages to the active peer until the queue or window is exhausted
func (exporter *Exporter) pump(session *Session) {
	binding := session.active
	if session.stopped || binding == nil || binding.State != BindingActive {
		return
	}
	conn := binding.peer.conn
	if conn == nil || conn.State != ConnConnected {
		return
	}

	tc := session.Context()
	queue := tc.Queue
	if session.retransmit {
		session.retransmit = false
		if session.duplicates > 0 {
			logctx.LogEvent(exporter.ctx, global.VerbosityProgress, global.InfoLog,
				"session %d resending %d unacknowledged records to peer %s\n", session.ID, session.duplicates, binding.peer.Name)
		}
	}

	window := uint64(exporter.tuning.WindowSize)
	for {
		if window > 0 && queue.Outstanding() >= window {
			return
		}
		handle := queue.Peek()
		if handle.IsNull() {
			return
		}

		msg := tc.Pool.Message(handle)
		if session.duplicates > 0 {
			session.duplicates--
			protocol.SetDuplicate(msg, true)
			exporter.stats.resent++
		} else {
			exporter.stats.sent++
		}

		if !exporter.send(conn, msg) {
			return
		}
		// a nested failover replaces the active binding
		if session.active != binding {
			return
		}
	}
}
