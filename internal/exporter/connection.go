package exporter

import (
	"fmt"
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/internal/reactor"
	"ipdrexporter/pkg/protocol"
	"time"
)

var disconnectMsg = protocol.Disconnect{}

func sessionStop(reason uint16) (msg protocol.SessionStop) {
	msg = protocol.SessionStop{ReasonCode: reason}
	return
}

// Starts a transport connect for peer unless one is already underway
func (exporter *Exporter) connect(peer *Peer) {
	if exporter.closed {
		return
	}
	conn := peer.conn
	if conn == nil {
		conn = &Connection{peer: peer}
		peer.conn = conn
	}
	if conn.dialing || conn.State != ConnDisconnected {
		return
	}
	exporter.cancelTimer(&conn.reconnect)

	id, err := exporter.transport.Connect(peer.Addr, peer.Port)
	if err != nil {
		logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.WarnLog,
			"failed to start connection to peer %s (%s:%d): %v\n", peer.Name, peer.Addr, peer.Port, err)
		exporter.scheduleReconnect(conn)
		return
	}
	conn.ID = id
	conn.dialing = true
	exporter.byConn[id] = conn

	logctx.LogEvent(exporter.ctx, global.VerbosityProgress, global.InfoLog,
		"connecting to peer %s (%s:%d) as connection %d\n", peer.Name, peer.Addr, peer.Port, id)
}

// Transport callback: link established, start the CONNECT handshake
func (exporter *Exporter) OnConnect(id ConnID) {
	conn, ok := exporter.byConn[id]
	if !ok || !conn.dialing {
		logctx.LogEvent(exporter.ctx, global.VerbosityProgress, global.WarnLog,
			"connect callback for unknown connection %d\n", id)
		return
	}
	conn.dialing = false
	exporter.setConnState(conn, ConnAwaitingResponse, "transport connected")

	connect := protocol.Connect{
		Capabilities:      exporter.tuning.Capabilities,
		KeepAliveInterval: uint32(exporter.tuning.KeepAliveInterval / time.Second),
		VendorID:          exporter.tuning.VendorID,
	}
	if !exporter.sendControl(conn, 0, connect) {
		return
	}

	exporter.arm(&conn.response, exporter.tuning.ResponseTimeout, func() {
		if conn.ID != id || conn.State != ConnAwaitingResponse {
			return
		}
		exporter.anomaly(map[string]any{"peer": conn.peer.Name, "connection": uint64(id)},
			"no connect response from peer %s within %s\n", conn.peer.Name, exporter.tuning.ResponseTimeout)
		exporter.dropConnection(conn, "connect response timeout")
	})
}

// Transport callback: link lost or dial failed
func (exporter *Exporter) OnDisconnect(id ConnID, cause error) {
	conn, ok := exporter.byConn[id]
	if !ok {
		return
	}
	reason := "transport closed"
	if cause != nil {
		reason = cause.Error()
	}
	exporter.connectionLost(conn, reason)
}

// Closes the transport link and handles the loss locally
func (exporter *Exporter) dropConnection(conn *Connection, reason string) {
	err := exporter.transport.Close(conn.ID)
	if err != nil {
		logctx.LogEvent(exporter.ctx, global.VerbosityProgress, global.WarnLog,
			"failed closing connection %d: %v\n", conn.ID, err)
	}
	exporter.connectionLost(conn, reason)
}

// Resets the connection and every binding riding on it, then reselects
// for any session that lost its active peer
func (exporter *Exporter) connectionLost(conn *Connection, reason string) {
	if conn.State == ConnDisconnected && !conn.dialing {
		return
	}
	exporter.cancelTimer(&conn.keepAliveOut)
	exporter.cancelTimer(&conn.keepAliveIn)
	exporter.cancelTimer(&conn.response)
	delete(exporter.byConn, conn.ID)
	conn.dialing = false
	exporter.setConnState(conn, ConnDisconnected, reason)

	for _, binding := range conn.peer.bindings {
		exporter.cancelTimer(&binding.initTimer)
		binding.State = BindingDisconnected
		session := binding.session
		if session.active == binding {
			session.active = nil
			exporter.selectActive(session)
		}
	}
	exporter.scheduleReconnect(conn)
}

func (exporter *Exporter) scheduleReconnect(conn *Connection) {
	if exporter.closed || !exporter.running {
		return
	}
	exporter.arm(&conn.reconnect, exporter.tuning.ReconnectInterval, func() {
		exporter.connect(conn.peer)
	})
}

func (exporter *Exporter) setConnState(conn *Connection, state ConnState, reason string) {
	previous := conn.State
	conn.State = state
	if previous == state && state != ConnDisconnected {
		return
	}

	logctx.LogEvent(exporter.ctx, global.VerbosityProgress, global.InfoLog,
		"peer %s connection %d: %s -> %s (%s)\n", conn.peer.Name, conn.ID, previous, state, reason)
	exporter.sink.Emit(global.InfoLog, events.ConnectionState, map[string]any{
		"peer":       conn.peer.Name,
		"connection": uint64(conn.ID),
		"from":       previous.String(),
		"to":         state.String(),
		"reason":     reason,
	})
}

// Sends a frame. A failed send drops the connection and reports false.
func (exporter *Exporter) send(conn *Connection, frame []byte) (ok bool) {
	if conn == nil || conn.State == ConnDisconnected {
		return
	}
	err := exporter.transport.Send(conn.ID, frame)
	if err != nil {
		exporter.stats.sendFailures++
		logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.WarnLog,
			"send of %s to peer %s failed: %v\n", protocol.MessageName(protocol.MessageID(frame)), conn.peer.Name, err)
		exporter.dropConnection(conn, fmt.Sprintf("send failure: %v", err))
		return
	}
	conn.sent++
	exporter.armKeepAliveOut(conn)
	ok = true
	return
}

func (exporter *Exporter) sendControl(conn *Connection, sessionID uint8, body protocol.Body) (ok bool) {
	ok = exporter.send(conn, protocol.Encode(sessionID, body))
	return
}

// Outgoing keep-alive fires after a quiet interval on our side
func (exporter *Exporter) armKeepAliveOut(conn *Connection) {
	if conn.State != ConnConnected {
		return
	}
	id := conn.ID
	exporter.arm(&conn.keepAliveOut, exporter.tuning.KeepAliveInterval, func() {
		if conn.ID != id || conn.State != ConnConnected {
			return
		}
		exporter.sendControl(conn, 0, protocol.KeepAlive{})
	})
}

// Incoming keep-alive expires when the peer stays quiet past its advertised interval
func (exporter *Exporter) armKeepAliveIn(conn *Connection) {
	if conn.State != ConnConnected {
		return
	}
	interval := conn.peerKeepAlive
	if interval <= 0 {
		interval = exporter.tuning.KeepAliveInterval
	}
	id := conn.ID
	exporter.arm(&conn.keepAliveIn, interval, func() {
		if conn.ID != id || conn.State != ConnConnected {
			return
		}
		exporter.anomaly(map[string]any{"peer": conn.peer.Name, "connection": uint64(id)},
			"peer %s silent for %s, keep-alive expired\n", conn.peer.Name, interval)
		exporter.sendControl(conn, 0, protocol.Error{
			Timestamp:   uint32(time.Now().Unix()),
			ErrorCode:   protocol.ErrCodeKeepAliveExpired,
			Description: "keep-alive expired",
		})
		exporter.dropConnection(conn, "keep-alive expired")
	})
}

// Schedules fn as a one-shot timer stored in slot. A firing that no longer
// matches slot (cancelled or replaced) is ignored.
func (exporter *Exporter) arm(slot *reactor.TimerID, interval time.Duration, fn func()) {
	exporter.cancelTimer(slot)
	var id reactor.TimerID
	id = exporter.timers.Schedule(interval, false, func() {
		if *slot != id {
			return
		}
		*slot = 0
		fn()
	})
	*slot = id
}

func (exporter *Exporter) cancelTimer(slot *reactor.TimerID) {
	if *slot == 0 {
		return
	}
	exporter.timers.Cancel(*slot)
	*slot = 0
}

// Protocol anomaly: logged and reported, never fatal on its own
func (exporter *Exporter) anomaly(fields map[string]any, format string, args ...any) {
	exporter.stats.anomalies++
	message := fmt.Sprintf(format, args...)
	logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.WarnLog, "%s", message)
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["detail"] = trimNewline(message)
	exporter.sink.Emit(global.WarnLog, events.AnomalyDetected, fields)
}

func trimNewline(text string) string {
	if len(text) > 0 && text[len(text)-1] == '\n' {
		return text[:len(text)-1]
	}
	return text
}
