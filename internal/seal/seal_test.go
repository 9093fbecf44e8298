package seal

import (
	"bytes"
	"context"
	"errors"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/pkg/protocol"
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	private, public, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, otherPublic, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tests := []struct {
		name       string
		frame      []byte
		public     []byte
		corrupt    bool
		expectSeal bool
		expectOpen bool
	}{
		{"regular", protocol.Encode(1, protocol.KeepAlive{}), public, false, true, true},
		{"large", []byte(strings.Repeat("t", 4000)), public, false, true, true},
		{"empty", []byte{}, public, false, true, true},
		{"short public key", []byte("frame"), public[:16], false, false, false},
		{"wrong recipient", []byte("frame"), otherPublic, false, true, false},
		{"corrupted ciphertext", []byte("frame"), public, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := Seal(tt.frame, tt.public)
			if (err == nil) != tt.expectSeal {
				t.Fatalf("seal error mismatch: %v", err)
			}
			if err != nil {
				return
			}
			if len(envelope) != Overhead(SuiteX25519ChaCha)+len(tt.frame) {
				t.Fatalf("unexpected envelope length %d", len(envelope))
			}
			if tt.corrupt {
				envelope[len(envelope)-1] ^= 0x01
			}

			opened, err := Open(envelope, private)
			if (err == nil) != tt.expectOpen {
				t.Fatalf("open error mismatch: %v", err)
			}
			if err == nil && !bytes.Equal(opened, tt.frame) {
				t.Fatalf("opened frame differs")
			}
		})
	}
}

func TestOpenRejectsMalformed(t *testing.T) {
	private, _, _ := GenerateKey()

	tests := []struct {
		name     string
		envelope []byte
		expect   error
	}{
		{"empty", nil, ErrShortEnvelope},
		{"unknown suite", append([]byte{9}, make([]byte, 80)...), ErrUnknownSuite},
		{"truncated", append([]byte{SuiteX25519ChaCha}, make([]byte, 20)...), ErrShortEnvelope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.envelope, private); !errors.Is(err, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, err)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	_, public, _ := GenerateKey()

	key, err := ParseKey(" " + EncodeKey(public) + "\n")
	if err != nil || !bytes.Equal(key, public) {
		t.Fatalf("round trip failed: %v", err)
	}
	if _, err = ParseKey("not base64!"); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, err = ParseKey(EncodeKey(public[:8])); !errors.Is(err, ErrBadKey) {
		t.Fatalf("expected ErrBadKey, got %v", err)
	}
}

type memoryTransport struct {
	lastID exporter.ConnID
	sent   map[exporter.ConnID][][]byte
}

func (memory *memoryTransport) Connect(addr string, port uint16) (id exporter.ConnID, err error) {
	memory.lastID++
	id = memory.lastID
	return
}

func (memory *memoryTransport) Send(id exporter.ConnID, frame []byte) (err error) {
	memory.sent[id] = append(memory.sent[id], frame)
	return
}

func (memory *memoryTransport) Close(id exporter.ConnID) (err error) { return }

type capture struct {
	frames [][]byte
}

func (c *capture) OnConnect(id exporter.ConnID)                 {}
func (c *capture) OnDisconnect(id exporter.ConnID, cause error) {}
func (c *capture) OnData(id exporter.ConnID, frame []byte) {
	c.frames = append(c.frames, frame)
}

func TestTransportSealsKeyedEndpoints(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	ctx := logctx.New(context.Background(), global.NSTest, global.VerbosityNone, done)

	collectorPriv, collectorPub, _ := GenerateKey()
	exporterPriv, exporterPub, _ := GenerateKey()

	memory := &memoryTransport{sent: make(map[exporter.ConnID][][]byte)}
	transport := NewTransport(ctx, memory, map[string][]byte{
		Endpoint("secure.example", 4737): collectorPub,
	}, exporterPriv)

	secure, _ := transport.Connect("secure.example", 4737)
	plain, _ := transport.Connect("plain.example", 4737)

	frame := protocol.Encode(3, protocol.SessionStop{ReasonCode: protocol.ReasonEndOfData})
	transport.Send(secure, frame)
	transport.Send(plain, frame)

	if !bytes.Equal(memory.sent[plain][0], frame) {
		t.Fatalf("plain endpoint must receive the frame unchanged")
	}
	header, body, err := protocol.Decode(memory.sent[secure][0])
	if err != nil {
		t.Fatalf("sealed frame does not decode: %v", err)
	}
	if header.MessageID != protocol.MsgSealed || header.SessionID != 3 {
		t.Fatalf("unexpected sealed header %+v", header)
	}
	inner, err := Open(body.(*protocol.Sealed).Envelope, collectorPriv)
	if err != nil || !bytes.Equal(inner, frame) {
		t.Fatalf("collector could not open envelope: %v", err)
	}

	// inbound envelopes sealed to the exporter's key are opened
	received := &capture{}
	handler := transport.Handler(received)
	reply := protocol.Encode(0, protocol.KeepAlive{})
	envelope, _ := Seal(reply, exporterPub)
	handler.OnData(secure, protocol.Encode(0, protocol.Sealed{Envelope: envelope}))

	garbage := protocol.Encode(0, protocol.Sealed{Envelope: []byte{1, 2, 3}})
	handler.OnData(secure, garbage)

	if len(received.frames) != 2 || !bytes.Equal(received.frames[0], reply) || !bytes.Equal(received.frames[1], garbage) {
		t.Fatalf("unexpected delivered frames %x", received.frames)
	}
}
