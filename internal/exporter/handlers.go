package exporter

import (
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/internal/template"
	"ipdrexporter/pkg/protocol"
	"time"
)

// Transport callback: one complete frame from a peer
func (exporter *Exporter) OnData(id ConnID, frame []byte) {
	conn, ok := exporter.byConn[id]
	if !ok || conn.State == ConnDisconnected {
		return
	}
	conn.received++

	header, body, err := protocol.Decode(frame)
	if err != nil {
		exporter.anomaly(map[string]any{"peer": conn.peer.Name, "connection": uint64(id)},
			"undecodable frame from peer %s: %v\n", conn.peer.Name, err)
		exporter.sendControl(conn, header.SessionID, protocol.Error{
			Timestamp:   uint32(time.Now().Unix()),
			ErrorCode:   protocol.ErrCodeDecodeError,
			Description: err.Error(),
		})
		return
	}
	exporter.armKeepAliveIn(conn)

	switch msg := body.(type) {
	case *protocol.ConnectResponse:
		exporter.handleConnectResponse(conn, msg)
		return
	case *protocol.Disconnect:
		exporter.dropConnection(conn, "peer sent disconnect")
		return
	case *protocol.KeepAlive:
		return
	case *protocol.Error:
		logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.WarnLog,
			"peer %s reported error %d: %s\n", conn.peer.Name, msg.ErrorCode, msg.Description)
		return
	}

	if conn.State != ConnConnected {
		exporter.anomaly(map[string]any{"peer": conn.peer.Name, "message": protocol.MessageName(header.MessageID)},
			"%s from peer %s before connect response\n", protocol.MessageName(header.MessageID), conn.peer.Name)
		return
	}

	if get, isGet := body.(*protocol.GetSessions); isGet {
		exporter.handleGetSessions(conn, get)
		return
	}

	binding := exporter.bindingFor(conn, header.SessionID)
	if binding == nil {
		exporter.anomaly(map[string]any{"peer": conn.peer.Name, "session": header.SessionID},
			"%s from peer %s for unbound session %d\n", protocol.MessageName(header.MessageID), conn.peer.Name, header.SessionID)
		exporter.sendControl(conn, header.SessionID, protocol.Error{
			Timestamp:   uint32(time.Now().Unix()),
			ErrorCode:   protocol.ErrCodeSessionInvalid,
			Description: "session not available",
		})
		return
	}

	switch msg := body.(type) {
	case *protocol.FlowStart:
		exporter.handleFlowStart(binding)
	case *protocol.FlowStop:
		exporter.handleFlowStop(binding, msg)
	case *protocol.FinalTemplateDataAck:
		exporter.handleFinalTemplateAck(binding)
	case *protocol.DataAck:
		exporter.handleDataAck(binding, msg)
	case *protocol.GetTemplates:
		exporter.handleGetTemplates(binding, msg)
	case *protocol.ModifyTemplate:
		exporter.handleModifyTemplate(binding, msg)
	case *protocol.StartNegotiation:
		exporter.sendControl(conn, binding.session.ID, protocol.StartNegotiationReject{})
	default:
		exporter.anomaly(map[string]any{"peer": conn.peer.Name, "message": protocol.MessageName(header.MessageID)},
			"unexpected %s from peer %s\n", protocol.MessageName(header.MessageID), conn.peer.Name)
	}
}

// Binding of a live session on this connection's peer
func (exporter *Exporter) bindingFor(conn *Connection, sessionID uint8) (binding *Binding) {
	session := exporter.Session(sessionID)
	if session == nil || session.stopped {
		return
	}
	binding = conn.peer.binding(session)
	return
}

func (exporter *Exporter) handleConnectResponse(conn *Connection, msg *protocol.ConnectResponse) {
	if conn.State != ConnAwaitingResponse {
		exporter.anomaly(map[string]any{"peer": conn.peer.Name},
			"unsolicited connect response from peer %s\n", conn.peer.Name)
		return
	}
	exporter.cancelTimer(&conn.response)

	conn.peer.Capabilities = exporter.tuning.Capabilities & msg.Capabilities
	conn.peerKeepAlive = time.Duration(msg.KeepAliveInterval) * time.Second
	exporter.setConnState(conn, ConnConnected, "connect response from "+msg.VendorID)
	exporter.armKeepAliveOut(conn)
	exporter.armKeepAliveIn(conn)

	for _, binding := range conn.peer.bindings {
		if conn.State != ConnConnected {
			return
		}
		if binding.session.stopped {
			continue
		}
		exporter.initiate(binding)
	}
}

// Collector asks for the session flow, (re)send templates unless already streaming
func (exporter *Exporter) handleFlowStart(binding *Binding) {
	if binding.State == BindingActive {
		return
	}
	exporter.initiate(binding)
}

// Collector no longer wants the session flow
func (exporter *Exporter) handleFlowStop(binding *Binding, msg *protocol.FlowStop) {
	session := binding.session
	logctx.LogEvent(exporter.ctx, global.VerbosityProgress, global.InfoLog,
		"peer %s stopped flow for session %d (reason %d: %s)\n", binding.peer.Name, session.ID, msg.ReasonCode, msg.ReasonInfo)

	exporter.cancelTimer(&binding.initTimer)
	binding.State = BindingDisconnected
	if session.active == binding {
		session.active = nil
		exporter.selectActive(session)
	}
}

func (exporter *Exporter) handleFinalTemplateAck(binding *Binding) {
	if binding.State != BindingInitiating {
		exporter.anomaly(map[string]any{"peer": binding.peer.Name, "session": binding.session.ID},
			"final template ack from peer %s in state %s\n", binding.peer.Name, binding.State)
		return
	}
	exporter.cancelTimer(&binding.initTimer)

	session := binding.session
	current := session.Context().Templates.ConfigID
	if binding.pendingConfig != current {
		// templates changed while the peer was negotiating
		exporter.initiate(binding)
		return
	}
	binding.State = BindingReady
	binding.ackedConfig = current
	binding.templatesSet = true
	exporter.selectActive(session)
}

func (exporter *Exporter) handleDataAck(binding *Binding, msg *protocol.DataAck) {
	session := binding.session
	if binding.State != BindingReady && binding.State != BindingActive {
		exporter.anomaly(map[string]any{"peer": binding.peer.Name, "session": session.ID, "dsn": msg.SequenceNumber},
			"data ack from peer %s in state %s\n", binding.peer.Name, binding.State)
		return
	}
	binding.lastAck = msg.SequenceNumber

	queue := session.Context().Queue
	before := queue.Outstanding()
	removed := queue.RemoveUpTo(exporter.ctx, msg.SequenceNumber)
	if removed > 0 {
		exporter.stats.acked += uint64(removed)
		if uint64(removed) > before {
			beyond := uint64(removed) - before
			if beyond > session.duplicates {
				beyond = session.duplicates
			}
			session.duplicates -= beyond
		}
		if queue.Size() == 0 {
			exporter.sink.Emit(global.InfoLog, events.QueueEmptied, map[string]any{
				"session": session.ID,
				"dsn":     msg.SequenceNumber,
			})
		}
	}

	active := session.active
	if binding != active && (active == nil || binding.Priority <= active.Priority) {
		exporter.selectActive(session)
	}
	exporter.pump(session)
}

func (exporter *Exporter) handleGetSessions(conn *Connection, msg *protocol.GetSessions) {
	response := protocol.GetSessionsResponse{RequestID: msg.RequestID}
	for _, binding := range conn.peer.bindings {
		session := binding.session
		if session.stopped {
			continue
		}
		response.Sessions = append(response.Sessions, protocol.SessionBlock{
			SessionID:           session.ID,
			Name:                session.Name,
			Description:         session.Description,
			AckTimeInterval:     uint32(exporter.tuning.AckTimeInterval / time.Millisecond),
			AckSequenceInterval: exporter.tuning.AckSequenceInterval,
		})
	}
	exporter.sendControl(conn, 0, response)
}

func (exporter *Exporter) handleGetTemplates(binding *Binding, msg *protocol.GetTemplates) {
	set := binding.session.Context().Templates
	exporter.sendControl(binding.peer.conn, binding.session.ID, protocol.GetTemplatesResponse{
		RequestID: msg.RequestID,
		ConfigID:  set.ConfigID,
		Templates: set.Blocks(),
	})
}

// Applies collector requested field changes as a new configuration.
// Rejected changes leave the current configuration untouched and echo it back.
func (exporter *Exporter) handleModifyTemplate(binding *Binding, msg *protocol.ModifyTemplate) {
	session := binding.session
	conn := binding.peer.conn
	tc := session.Context()

	next, err := tc.Templates.Modify(template.ChangesFromBlocks(msg.Templates))
	if err != nil {
		exporter.anomaly(map[string]any{"peer": binding.peer.Name, "session": session.ID},
			"rejected template modification from peer %s: %v\n", binding.peer.Name, err)
		exporter.sendControl(conn, session.ID, protocol.ModifyTemplateResponse{
			ConfigID:  tc.Templates.ConfigID,
			Flags:     msg.Flags,
			Templates: tc.Templates.Blocks(),
		})
		return
	}
	tc.swapTemplates(next)

	logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.InfoLog,
		"session %d templates modified by peer %s, configuration now %d\n", session.ID, binding.peer.Name, next.ConfigID)
	if !exporter.sendControl(conn, session.ID, protocol.ModifyTemplateResponse{
		ConfigID:  next.ConfigID,
		Flags:     msg.Flags,
		Templates: next.Blocks(),
	}) {
		return
	}

	// Every negotiated peer must see the new configuration before more data
	for _, other := range session.bindings {
		if other.State != BindingReady && other.State != BindingActive {
			continue
		}
		if other.templatesSet && other.ackedConfig == next.ConfigID {
			continue
		}
		if session.active == other {
			session.active = nil
			other.State = BindingReady
			if !exporter.sendControl(other.peer.conn, session.ID, sessionStop(protocol.ReasonTemplateUpdate)) {
				continue
			}
		}
		exporter.initiate(other)
	}
	exporter.selectActive(session)
}
