package events

import (
	"bytes"
	"context"
	"errors"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

func TestLogSink(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	ctx := logctx.New(context.Background(), global.NSTest, global.VerbosityProgress, done)

	sink := NewLogSink(ctx)
	sink.Emit(global.WarnLog, RecordLost, map[string]any{"session": 1, "count": 3})

	lines := logctx.GetLogger(ctx).GetFormattedLogLines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[Warn] record lost count=3 session=1\n") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	fan := Fanout{first, nil, Discard{}, second}

	fields := map[string]any{"peer": "a"}
	fan.Emit(global.InfoLog, PeerSelected, fields)
	fields["peer"] = "mutated"

	for _, rec := range []*Recorder{first, second} {
		found := rec.Find(PeerSelected)
		if len(found) != 1 {
			t.Fatalf("expected 1 event, got %d", len(found))
		}
		if found[0].Fields["peer"] != "a" {
			t.Fatalf("recorder must copy fields, got %v", found[0].Fields["peer"])
		}
	}
	if err := fan.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestStreamSink(t *testing.T) {
	var out bytes.Buffer
	sink := NewStreamSink(&out, "ipdr.events")
	sink.Emit(global.WarnLog, AnomalyDetected, map[string]any{"dsn": uint64(7)})
	sink.Emit(global.InfoLog, QueueEmptied, nil)

	decoder := msgpack.NewDecoder(&out)
	var messages []string
	for i := 0; i < 2; i++ {
		var entry []interface{}
		if err := decoder.Decode(&entry); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if len(entry) != 3 {
			t.Fatalf("expected [tag, time, record], got %v", entry)
		}
		if entry[0] != "ipdr.events" {
			t.Fatalf("unexpected tag %v", entry[0])
		}
		record, ok := entry[2].(map[string]interface{})
		if !ok {
			t.Fatalf("record is %T", entry[2])
		}
		messages = append(messages, record["message"].(string))
	}
	if messages[0] != AnomalyDetected || messages[1] != QueueEmptied {
		t.Fatalf("unexpected messages %v", messages)
	}
	if sink.Errors() != 0 {
		t.Fatalf("unexpected encode errors")
	}
}

type fakeBeats struct {
	mutex  sync.Mutex
	sent   []interface{}
	fail   int
	closed int
	gate   chan struct{} // holds the first send until closed
}

func (fake *fakeBeats) Send(data []interface{}) (n int, err error) {
	if fake.gate != nil {
		<-fake.gate
	}
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.fail > 0 {
		fake.fail--
		err = errors.New("broken pipe")
		return
	}
	fake.sent = append(fake.sent, data...)
	n = len(data)
	return
}

func (fake *fakeBeats) Close() error {
	fake.mutex.Lock()
	fake.closed++
	fake.mutex.Unlock()
	return nil
}

func TestBeatsSinkReconnects(t *testing.T) {
	client := &fakeBeats{fail: 1}
	dials := 0
	dial := func(string) (beatsClient, error) {
		dials++
		return client, nil
	}

	sink, err := newBeatsSink(context.Background(), "collector:5044", dial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink.Emit(global.WarnLog, RecordLost, map[string]any{"count": 2})
	sink.Emit(global.InfoLog, PeerSelected, nil)
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if dials != 2 {
		t.Fatalf("expected initial dial plus one reconnect, got %d", dials)
	}
	if len(client.sent) != 2 {
		t.Fatalf("expected 2 events delivered, got %d", len(client.sent))
	}
	first := client.sent[0].(map[string]interface{})
	if first["message"] != RecordLost {
		t.Fatalf("unexpected first event %v", first["message"])
	}
	labels := first["ipdr"].(map[string]interface{})
	if labels["count"] != 2 {
		t.Fatalf("fields not carried: %v", labels)
	}

	// Emit after close is ignored
	sink.Emit(global.InfoLog, QueueEmptied, nil)
}

func TestBeatsSinkDrainsOnClose(t *testing.T) {
	client := &fakeBeats{fail: 1}
	sink, err := newBeatsSink(context.Background(), "collector:5044", func(string) (beatsClient, error) {
		return client, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		sink.Emit(global.WarnLog, RecordLost, map[string]any{"count": i})
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(client.sent) != 5 {
		t.Fatalf("expected all 5 queued events delivered, got %d", len(client.sent))
	}
	if sink.Dropped() != 0 {
		t.Fatalf("unexpected drops: %d", sink.Dropped())
	}
}

func TestBeatsSinkDropsWhenFinalRedialFails(t *testing.T) {
	client := &fakeBeats{fail: 1, gate: make(chan struct{})}
	dials := 0
	dial := func(string) (beatsClient, error) {
		dials++
		if dials > 1 {
			return nil, errors.New("connection refused")
		}
		return client, nil
	}

	sink, err := newBeatsSink(context.Background(), "collector:5044", dial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		sink.Emit(global.WarnLog, RecordLost, nil)
	}

	closeDone := make(chan error, 1)
	go func() {
		closeDone <- sink.Close()
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		sink.mutex.Lock()
		closed := sink.closed
		sink.mutex.Unlock()
		if closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sink never marked closed")
		}
		time.Sleep(time.Millisecond)
	}
	close(client.gate)

	select {
	case err := <-closeDone:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("close blocked while draining")
	}

	if dials != 2 {
		t.Fatalf("expected one redial after close, got %d dials", dials)
	}
	if sink.Dropped() != 3 {
		t.Fatalf("expected 3 dropped events, got %d", sink.Dropped())
	}
	if len(client.sent) != 0 {
		t.Fatalf("unexpected deliveries: %d", len(client.sent))
	}
}

func TestBeatsSinkNoEndpoint(t *testing.T) {
	sink, err := NewBeatsSink(context.Background(), "")
	if sink != nil || err != nil {
		t.Fatalf("expected nil sink without endpoint")
	}
	// nil sink is safe
	sink.Emit(global.InfoLog, QueueEmptied, nil)
	if err := sink.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
