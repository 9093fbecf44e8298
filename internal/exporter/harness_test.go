package exporter

import (
	"context"
	"errors"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/reactor"
	"ipdrexporter/internal/template"
	"ipdrexporter/pkg/protocol"
	"sort"
	"testing"
	"time"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeTransport struct {
	lastID     ConnID
	dials      []string
	sent       map[ConnID][][]byte
	closed     []ConnID
	failSend   map[ConnID]error
	connectErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:     make(map[ConnID][][]byte),
		failSend: make(map[ConnID]error),
	}
}

func (fake *fakeTransport) Connect(addr string, port uint16) (id ConnID, err error) {
	if fake.connectErr != nil {
		err = fake.connectErr
		return
	}
	fake.lastID++
	id = fake.lastID
	fake.dials = append(fake.dials, addr)
	return
}

func (fake *fakeTransport) Send(id ConnID, frame []byte) (err error) {
	if err = fake.failSend[id]; err != nil {
		return
	}
	fake.sent[id] = append(fake.sent[id], append([]byte(nil), frame...))
	return
}

func (fake *fakeTransport) Close(id ConnID) (err error) {
	fake.closed = append(fake.closed, id)
	return
}

type fakeTimer struct {
	id reactor.TimerID
	at time.Duration
	fn func()
}

// Manually advanced clock
type fakeTimers struct {
	now     time.Duration
	lastID  reactor.TimerID
	pending map[reactor.TimerID]*fakeTimer
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{pending: make(map[reactor.TimerID]*fakeTimer)}
}

func (fake *fakeTimers) Schedule(interval time.Duration, periodic bool, fn func()) reactor.TimerID {
	fake.lastID++
	fake.pending[fake.lastID] = &fakeTimer{id: fake.lastID, at: fake.now + interval, fn: fn}
	return fake.lastID
}

func (fake *fakeTimers) Cancel(id reactor.TimerID) {
	delete(fake.pending, id)
}

// Fires every timer due within d in deadline order
func (fake *fakeTimers) Advance(d time.Duration) {
	target := fake.now + d
	for {
		var due []*fakeTimer
		for _, entry := range fake.pending {
			if entry.at <= target {
				due = append(due, entry)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].id < due[j].id
		})
		next := due[0]
		delete(fake.pending, next.id)
		fake.now = next.at
		next.fn()
	}
	fake.now = target
}

type received struct {
	header protocol.Header
	body   protocol.Body
}

type testEnv struct {
	t         *testing.T
	exp       *Exporter
	transport *fakeTransport
	timers    *fakeTimers
	sink      *events.Recorder
}

func testTuning() Tuning {
	return Tuning{
		KeepAliveInterval:   10 * time.Second,
		ResponseTimeout:     2 * time.Second,
		TemplateAckTimeout:  3 * time.Second,
		ReconnectInterval:   5 * time.Second,
		AckTimeInterval:     time.Second,
		AckSequenceInterval: 16,
		Capabilities:        protocol.CapStructures | protocol.CapMultiSession,
	}
}

func newTestEnv(t *testing.T, tuning Tuning) (env *testEnv) {
	t.Helper()
	env = &testEnv{
		t:         t,
		transport: newFakeTransport(),
		timers:    newFakeTimers(),
		sink:      &events.Recorder{},
	}
	env.exp = New(context.Background(), env.transport, env.timers, env.sink, tuning)
	return
}

func newTestSet(t *testing.T) (set *template.Set) {
	t.Helper()
	tmpl := template.New(1, "urn:test", "Usage")
	err := tmpl.AddField(template.Field{ID: 1, Name: "octets", Type: template.TypeUint, Enabled: true, Offset: 0})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	err = tmpl.AddField(template.Field{ID: 2, Name: "subscriber", Type: template.TypeString, Enabled: true, Offset: 0})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	set = template.NewSet(1)
	if err = set.Add(tmpl); err != nil {
		t.Fatalf("add template: %v", err)
	}
	return
}

func (env *testEnv) addSession(id uint8) (session *Session) {
	env.t.Helper()
	tc, err := NewTransmissionContext(id, bufpool.Config{ChunkSize: 1024, InitialChunks: 1}, newTestSet(env.t))
	if err != nil {
		env.t.Fatalf("transmission context: %v", err)
	}
	session, err = env.exp.AddSession(id, "session", "test session", tc)
	if err != nil {
		env.t.Fatalf("add session: %v", err)
	}
	return
}

func (env *testEnv) addPeer(name string, sessionID uint8, priority int) {
	env.t.Helper()
	if _, err := env.exp.AddPeer(name, name+".example", 4737); err != nil {
		env.t.Fatalf("add peer: %v", err)
	}
	if _, err := env.exp.Bind(sessionID, name, priority); err != nil {
		env.t.Fatalf("bind: %v", err)
	}
}

func testRecord(octets uint64) (rec template.Record) {
	rec.Fixed = make([]byte, 4)
	template.PutHost(rec.Fixed, 0, template.TypeUint, template.Value{Uint: octets})
	rec.Var = [][]byte{[]byte("subscriber")}
	return
}

func (env *testEnv) submit(sessionID uint8, count int) {
	env.t.Helper()
	for i := 0; i < count; i++ {
		if _, err := env.exp.Submit(sessionID, 1, testRecord(uint64(i))); err != nil {
			env.t.Fatalf("submit: %v", err)
		}
	}
}

func (env *testEnv) connID(peer string) ConnID {
	env.t.Helper()
	conn := env.exp.Peer(peer).Connection()
	if conn == nil {
		env.t.Fatalf("peer %s has no connection", peer)
	}
	return conn.ID
}

// Completes transport connect and the CONNECT handshake
func (env *testEnv) handshake(peer string) (id ConnID) {
	env.t.Helper()
	id = env.connID(peer)
	env.exp.OnConnect(id)
	env.exp.OnData(id, protocol.Encode(0, protocol.ConnectResponse{
		Capabilities:      protocol.CapStructures,
		KeepAliveInterval: 60,
		VendorID:          "collector",
	}))
	return
}

// Handshake plus template acknowledgment for session
func (env *testEnv) ready(peer string, sessionID uint8) (id ConnID) {
	env.t.Helper()
	id = env.handshake(peer)
	env.exp.OnData(id, protocol.Encode(sessionID, protocol.FinalTemplateDataAck{}))
	return
}

func (env *testEnv) ack(id ConnID, sessionID uint8, dsn uint64) {
	env.exp.OnData(id, protocol.Encode(sessionID, protocol.DataAck{ConfigID: 1, SequenceNumber: dsn}))
}

func (env *testEnv) frames(id ConnID) (list []received) {
	env.t.Helper()
	for _, frame := range env.transport.sent[id] {
		header, body, err := protocol.Decode(frame)
		if err != nil {
			env.t.Fatalf("sent frame does not decode: %v", err)
		}
		list = append(list, received{header: header, body: body})
	}
	return
}

func (env *testEnv) messageIDs(id ConnID) (ids []uint8) {
	for _, frame := range env.frames(id) {
		if frame.header.MessageID == protocol.MsgKeepAlive {
			continue
		}
		ids = append(ids, frame.header.MessageID)
	}
	return
}

// DSNs of DATA frames with their duplicate flag
func (env *testEnv) data(id ConnID) (dsns []uint64, duplicates []bool) {
	for _, frame := range env.frames(id) {
		data, ok := frame.body.(*protocol.Data)
		if !ok {
			continue
		}
		dsns = append(dsns, data.DSN)
		duplicates = append(duplicates, data.Flags&protocol.DataFlagDuplicate != 0)
	}
	return
}

func (env *testEnv) reset(id ConnID) {
	env.transport.sent[id] = nil
}

func (env *testEnv) activePeer(sessionID uint8) string {
	active := env.exp.Session(sessionID).Active()
	if active == nil {
		return ""
	}
	return active.Peer().Name
}

func equalDSNs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
