// Peer selection and session state machine for the record exporter
package exporter

import (
	"context"
	"crypto/rand"
	"fmt"
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/internal/template"
	"time"
)

// Creates new exporter. sink may be nil.
func New(ctx context.Context, transport Transport, timers Timers, sink events.Sink, tuning Tuning) (exporter *Exporter) {
	tuning.setDefaults()
	if sink == nil {
		sink = events.Discard{}
	}

	exporter = &Exporter{
		ctx:       logctx.AppendCtxTag(ctx, global.NSExport),
		transport: transport,
		timers:    timers,
		sink:      sink,
		tuning:    tuning,
		byConn:    make(map[ConnID]*Connection),
		bootTime:  uint32(time.Now().Unix()),
	}
	return
}

// Registers a collector. Connection starts with Start.
func (exporter *Exporter) AddPeer(name, addr string, port uint16) (peer *Peer, err error) {
	if exporter.Peer(name) != nil {
		err = fmt.Errorf("%w: %s", ErrDuplicatePeer, name)
		return
	}
	peer = &Peer{Name: name, Addr: addr, Port: port}
	exporter.peers = append(exporter.peers, peer)

	if exporter.running {
		exporter.connect(peer)
	}
	return
}

// Registers a session. The session takes ownership of tc.
func (exporter *Exporter) AddSession(id uint8, name, description string, tc *TransmissionContext) (session *Session, err error) {
	if exporter.Session(id) != nil {
		err = fmt.Errorf("%w: %d", ErrDuplicateSession, id)
		return
	}

	session = &Session{
		ID:          id,
		Name:        name,
		Description: description,
		tc:          newContextRef(tc),
	}
	_, err = rand.Read(session.documentID[:])
	if err != nil {
		err = fmt.Errorf("failed to generate document id: %w", err)
		session.tc.Release()
		session = nil
		return
	}
	exporter.sessions = append(exporter.sessions, session)
	return
}

// Pairs a session with a peer at the given priority (lower wins)
func (exporter *Exporter) Bind(sessionID uint8, peerName string, priority int) (binding *Binding, err error) {
	session, peer, err := exporter.lookup(sessionID, peerName)
	if err != nil {
		return
	}
	if peer.binding(session) != nil {
		err = fmt.Errorf("%w: session %d peer %s", ErrDuplicateBinding, sessionID, peerName)
		return
	}

	binding = &Binding{session: session, peer: peer, Priority: priority}
	session.bindings = append(session.bindings, binding)
	peer.bindings = append(peer.bindings, binding)

	// Already connected peers start negotiating right away
	if peer.conn != nil && peer.conn.State == ConnConnected && !session.stopped {
		exporter.initiate(binding)
	}
	return
}

// Changes a binding's priority and reselects
func (exporter *Exporter) SetPriority(sessionID uint8, peerName string, priority int) (err error) {
	session, peer, err := exporter.lookup(sessionID, peerName)
	if err != nil {
		return
	}
	binding := peer.binding(session)
	if binding == nil {
		err = fmt.Errorf("%w: session %d not bound to %s", ErrUnknownPeer, sessionID, peerName)
		return
	}
	if binding.Priority == priority {
		return
	}
	binding.Priority = priority
	exporter.selectActive(session)
	return
}

// Starts connecting to every registered peer
func (exporter *Exporter) Start() (err error) {
	if exporter.closed {
		err = ErrShutdown
		return
	}
	if exporter.running {
		return
	}
	exporter.running = true
	for _, peer := range exporter.peers {
		exporter.connect(peer)
	}
	return
}

// Marks a session ready to stream and selects its first active peer
func (exporter *Exporter) StartSession(id uint8) (err error) {
	session := exporter.Session(id)
	if session == nil {
		err = fmt.Errorf("%w: %d", ErrUnknownSession, id)
		return
	}
	if session.stopped {
		err = fmt.Errorf("%w: %d", ErrSessionStopped, id)
		return
	}
	session.started = true
	exporter.selectActive(session)
	return
}

// Stops a session, telling the active peer and dropping whatever is
// still queued. Dropped records are reported as lost.
func (exporter *Exporter) StopSession(id uint8) (err error) {
	session := exporter.Session(id)
	if session == nil {
		err = fmt.Errorf("%w: %d", ErrUnknownSession, id)
		return
	}
	if session.stopped {
		return
	}

	if session.active != nil {
		exporter.sendControl(session.active.peer.conn, session.ID, sessionStop(0))
	}
	for _, binding := range session.bindings {
		exporter.cancelTimer(&binding.initTimer)
		binding.State = BindingDisconnected
	}
	session.active = nil
	session.started = false
	session.stopped = true

	dropped := session.Context().Queue.RemoveAll()
	if dropped > 0 {
		session.lost += uint64(dropped)
		exporter.sink.Emit(global.WarnLog, events.RecordLost, map[string]any{
			"session": session.ID,
			"count":   dropped,
			"reason":  "session stopped",
		})
	}
	session.tc.Release()

	logctx.LogEvent(exporter.ctx, global.VerbosityStandard, global.InfoLog,
		"session %d (%s) stopped, %d queued records dropped\n", session.ID, session.Name, dropped)
	return
}

// Encodes rec with the session's current template and queues it for delivery.
// Returns the sequence number assigned to the record.
func (exporter *Exporter) Submit(sessionID uint8, templateID uint16, rec template.Record) (dsn uint64, err error) {
	session := exporter.Session(sessionID)
	if session == nil {
		err = fmt.Errorf("%w: %d", ErrUnknownSession, sessionID)
		return
	}
	if session.stopped {
		err = fmt.Errorf("%w: %d", ErrSessionStopped, sessionID)
		return
	}

	tc := session.Context()
	tmpl := tc.Templates.Get(templateID)
	if tmpl == nil {
		err = fmt.Errorf("session %d: %w: %d", sessionID, template.ErrUnknownTemplate, templateID)
		return
	}

	dsn = session.nextDSN
	handle, err := tc.Encoder.Encode(tmpl, tc.Templates.ConfigID, session.ID, dsn, rec)
	if err != nil {
		err = fmt.Errorf("session %d: %w", sessionID, err)
		return
	}
	tc.Queue.Push(handle)
	session.nextDSN++

	exporter.pump(session)
	return
}

// Disconnects from every peer and stops all sessions
func (exporter *Exporter) Shutdown() {
	if exporter.closed {
		return
	}
	for _, session := range exporter.sessions {
		_ = exporter.StopSession(session.ID)
	}
	exporter.closed = true
	exporter.running = false

	for _, peer := range exporter.peers {
		conn := peer.conn
		if conn == nil {
			continue
		}
		exporter.cancelTimer(&conn.reconnect)
		if conn.State == ConnConnected {
			exporter.sendControl(conn, 0, disconnectMsg)
		}
		if conn.State != ConnDisconnected || conn.dialing {
			exporter.dropConnection(conn, "shutdown")
		}
	}
}

// Session by id, nil when absent
func (exporter *Exporter) Session(id uint8) (session *Session) {
	for _, candidate := range exporter.sessions {
		if candidate.ID == id {
			session = candidate
			return
		}
	}
	return
}

// Peer by name, nil when absent
func (exporter *Exporter) Peer(name string) (peer *Peer) {
	for _, candidate := range exporter.peers {
		if candidate.Name == name {
			peer = candidate
			return
		}
	}
	return
}

// Registered peers in insertion order
func (exporter *Exporter) Peers() []*Peer { return exporter.peers }

// Registered sessions in insertion order
func (exporter *Exporter) Sessions() []*Session { return exporter.sessions }

func (exporter *Exporter) lookup(sessionID uint8, peerName string) (session *Session, peer *Peer, err error) {
	session = exporter.Session(sessionID)
	if session == nil {
		err = fmt.Errorf("%w: %d", ErrUnknownSession, sessionID)
		return
	}
	peer = exporter.Peer(peerName)
	if peer == nil {
		err = fmt.Errorf("%w: %s", ErrUnknownPeer, peerName)
		return
	}
	return
}
