package logctx

import (
	"bytes"
	"context"
	"ipdrexporter/internal/global"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (sb *syncBuffer) Write(p []byte) (int, error) {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	return sb.buf.Write(p)
}

func (sb *syncBuffer) String() string {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	return sb.buf.String()
}

func TestWatcher_DrainsAndSuppresses(t *testing.T) {
	done := make(chan struct{})
	ctx := New(context.Background(), global.NSTest, global.VerbosityStandard, done)
	logger := GetLogger(ctx)

	out := &syncBuffer{}
	StartWatcher(logger, out)

	LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "first\n")
	for range 12 {
		LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "repeat\n")
	}
	LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "last\n")

	deadline := time.Now().Add(2 * time.Second)
	for logger.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	close(done)
	logger.Wake()
	logger.Wait()

	text := out.String()
	if !strings.Contains(text, "first") || !strings.Contains(text, "last") {
		t.Fatalf("missing events in output: %q", text)
	}
	if strings.Count(text, "[Warn] repeat") != 1 {
		t.Fatalf("expected repeated message printed once, got %q", text)
	}
	if !strings.Contains(text, "Suppressed 10 repeated messages: repeat") {
		t.Fatalf("expected suppression summary, got %q", text)
	}
}

func TestPadTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 5_000_000, time.FixedZone("x", -5*3600))
	got := padTimestamp(ts)
	want := "2024-03-01T12:00:00.005000000-05:00"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
