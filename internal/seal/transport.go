package seal

import (
	"context"
	"fmt"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/pkg/protocol"
	"net"
	"strconv"
)

// Connection events, as delivered by a transport
type Handler interface {
	OnConnect(id exporter.ConnID)
	OnData(id exporter.ConnID, frame []byte)
	OnDisconnect(id exporter.ConnID, cause error)
}

// Wraps outbound frames in envelopes for endpoints with a known public key
// and opens inbound envelopes with the local private key
type Transport struct {
	ctx        context.Context
	next       exporter.Transport
	keys       map[string][]byte // host:port -> peer public key
	privateKey []byte
	sealed     map[exporter.ConnID][]byte

	stats struct {
		sealed   uint64
		opened   uint64
		failures uint64
	}
}

// Creates sealing transport. keys maps host:port to the collector's public key.
// privateKey may be empty when no inbound envelopes are expected.
func NewTransport(ctx context.Context, next exporter.Transport, keys map[string][]byte, privateKey []byte) (transport *Transport) {
	transport = &Transport{
		ctx:        logctx.AppendCtxTag(ctx, global.NSTransport),
		next:       next,
		keys:       make(map[string][]byte, len(keys)),
		privateKey: privateKey,
		sealed:     make(map[exporter.ConnID][]byte),
	}
	for endpoint, key := range keys {
		transport.keys[endpoint] = key
	}
	return
}

func Endpoint(addr string, port uint16) string {
	return net.JoinHostPort(addr, strconv.Itoa(int(port)))
}

func (transport *Transport) Connect(addr string, port uint16) (id exporter.ConnID, err error) {
	id, err = transport.next.Connect(addr, port)
	if err != nil {
		return
	}
	if key, ok := transport.keys[Endpoint(addr, port)]; ok {
		transport.sealed[id] = key
	}
	return
}

func (transport *Transport) Send(id exporter.ConnID, frame []byte) (err error) {
	key, ok := transport.sealed[id]
	if !ok {
		err = transport.next.Send(id, frame)
		return
	}

	envelope, err := Seal(frame, key)
	if err != nil {
		transport.stats.failures++
		err = fmt.Errorf("connection %d: failed to seal %s: %w", id, protocol.MessageName(protocol.MessageID(frame)), err)
		return
	}
	transport.stats.sealed++
	err = transport.next.Send(id, protocol.Encode(protocol.MessageSession(frame), protocol.Sealed{Envelope: envelope}))
	return
}

func (transport *Transport) Close(id exporter.ConnID) (err error) {
	delete(transport.sealed, id)
	err = transport.next.Close(id)
	return
}

// Handler that opens sealed frames before passing them to next
func (transport *Transport) Handler(next Handler) Handler {
	return &opener{transport: transport, next: next}
}

type opener struct {
	transport *Transport
	next      Handler
}

func (handler *opener) OnConnect(id exporter.ConnID) {
	handler.next.OnConnect(id)
}

func (handler *opener) OnDisconnect(id exporter.ConnID, cause error) {
	delete(handler.transport.sealed, id)
	handler.next.OnDisconnect(id, cause)
}

// Frames that cannot be opened are passed on unchanged
func (handler *opener) OnData(id exporter.ConnID, frame []byte) {
	transport := handler.transport
	if protocol.MessageID(frame) != protocol.MsgSealed || len(transport.privateKey) == 0 {
		handler.next.OnData(id, frame)
		return
	}

	_, body, err := protocol.Decode(frame)
	if err == nil {
		var inner []byte
		inner, err = Open(body.(*protocol.Sealed).Envelope, transport.privateKey)
		if err == nil {
			transport.stats.opened++
			handler.next.OnData(id, inner)
			return
		}
	}
	transport.stats.failures++
	logctx.LogEvent(transport.ctx, global.VerbosityStandard, global.WarnLog,
		"connection %d: failed to open sealed frame: %v\n", id, err)
	handler.next.OnData(id, frame)
}
