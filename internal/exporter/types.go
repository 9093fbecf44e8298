package exporter

import (
	"context"
	"errors"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/ownership"
	"ipdrexporter/internal/reactor"
	"ipdrexporter/internal/retransmit"
	"ipdrexporter/internal/template"
	"time"
)

var (
	ErrUnknownSession   = errors.New("unknown session")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrDuplicateSession = errors.New("duplicate session")
	ErrDuplicatePeer    = errors.New("duplicate peer")
	ErrDuplicateBinding = errors.New("peer already bound to session")
	ErrSessionStopped   = errors.New("session stopped")
	ErrShutdown         = errors.New("exporter shut down")
)

// Transport level link identifier issued by the Transport
type ConnID uint64

// Asynchronous byte transport. Send must not block and must not retain frame.
// Connect completion, inbound frames and loss are reported back through
// OnConnect, OnData and OnDisconnect on the loop goroutine.
type Transport interface {
	Connect(addr string, port uint16) (id ConnID, err error)
	Send(id ConnID, frame []byte) (err error)
	Close(id ConnID) (err error)
}

// Scheduled callbacks on the loop goroutine
type Timers interface {
	Schedule(interval time.Duration, periodic bool, fn func()) reactor.TimerID
	Cancel(id reactor.TimerID)
}

type ConnState uint8

const (
	ConnDisconnected ConnState = iota
	ConnAwaitingResponse
	ConnConnected
)

type BindingState uint8

const (
	BindingDisconnected BindingState = iota
	BindingInitiating
	BindingReady
	BindingActive
)

// Session level tuning
type Tuning struct {
	KeepAliveInterval   time.Duration // outgoing keep-alive and advertised interval
	ResponseTimeout     time.Duration // CONNECT_RESPONSE wait
	TemplateAckTimeout  time.Duration // FINAL_TEMPLATE_DATA_ACK wait
	ReconnectInterval   time.Duration
	WindowSize          int // max unacknowledged messages in flight, 0 = unlimited
	AckTimeInterval     time.Duration
	AckSequenceInterval uint32
	Capabilities        uint32
	VendorID            string
}

// Collector endpoint
type Peer struct {
	Name         string
	Addr         string
	Port         uint16
	Capabilities uint32 // negotiated
	conn         *Connection
	bindings     []*Binding
}

// Transport link to a peer, shared by all of the peer's bindings
type Connection struct {
	ID            ConnID
	State         ConnState
	peer          *Peer
	dialing       bool
	peerKeepAlive time.Duration
	keepAliveOut  reactor.TimerID
	keepAliveIn   reactor.TimerID
	response      reactor.TimerID
	reconnect     reactor.TimerID
	sent          uint64
	received      uint64
}

// Per session delivery state, owned by exactly one session
type TransmissionContext struct {
	Templates *template.Set
	Pool      *bufpool.Pool
	Queue     *retransmit.Queue
	Encoder   *template.Encoder
}

// Logical record stream
type Session struct {
	ID          uint8
	Name        string
	Description string
	tc          *ownership.Ref[TransmissionContext]
	nextDSN     uint64
	bindings    []*Binding // first seen order
	active      *Binding
	started     bool
	stopped     bool
	retransmit  bool
	duplicates  uint64 // queued messages from the head already sent to some peer
	lost        uint64
	documentID  [16]byte
}

// Pairing of a session with one candidate peer
type Binding struct {
	session       *Session
	peer          *Peer
	Priority      int
	State         BindingState
	initTimer     reactor.TimerID
	ackedConfig   uint16
	pendingConfig uint16 // configuration sent in the last TEMPLATE_DATA
	templatesSet  bool   // ackedConfig is valid
	lastAck       uint64
}

// Peer/session state machine. Every method must run on the loop goroutine.
type Exporter struct {
	ctx       context.Context
	transport Transport
	timers    Timers
	sink      events.Sink
	tuning    Tuning
	peers     []*Peer
	byConn    map[ConnID]*Connection
	sessions  []*Session
	bootTime  uint32
	running   bool
	closed    bool
	stats     exporterStats
}

// Interval counters, reset by CollectMetrics
type exporterStats struct {
	sent         uint64
	resent       uint64
	acked        uint64
	selections   uint64
	sendFailures uint64
	anomalies    uint64
}
