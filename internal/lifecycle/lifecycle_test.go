package lifecycle

import (
	"context"
	"errors"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

type fakeDaemon struct {
	reloads   int
	shutdowns int
	reloadErr error
}

func (daemon *fakeDaemon) Reload(ctx context.Context) error {
	daemon.reloads++
	return daemon.reloadErr
}

func (daemon *fakeDaemon) Shutdown() {
	daemon.shutdowns++
}

func testContext(t *testing.T) (ctx context.Context) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	ctx = logctx.New(context.Background(), global.NSTest, global.VerbosityNone, done)
	return
}

// Listens on a datagram socket and points NOTIFY_SOCKET at it
func notifySocket(t *testing.T) (socket *net.UnixConn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	socket, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { socket.Close() })
	t.Setenv(notifySocketEnv, path)
	return
}

func receive(t *testing.T, socket *net.UnixConn) (msg string) {
	t.Helper()
	socket.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := socket.Read(buf)
	if err != nil {
		t.Fatalf("read notification: %v", err)
	}
	msg = string(buf[:n])
	return
}

func TestNotify(t *testing.T) {
	ctx := testContext(t)
	socket := notifySocket(t)

	tests := []struct {
		name   string
		send   func(ctx context.Context) error
		prefix string
	}{
		{"ready", NotifyReady, "READY=1"},
		{"stopping", NotifyStopping, "STOPPING=1"},
		{"reload", NotifyReload, "RELOADING=1\nMONOTONIC_USEC="},
		{"status", func(ctx context.Context) error { return NotifyStatus(ctx, "exporting") }, "STATUS=exporting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.send(ctx); err != nil {
				t.Fatalf("notify: %v", err)
			}
			if msg := receive(t, socket); !strings.HasPrefix(msg, tt.prefix) {
				t.Fatalf("expected %q, got %q", tt.prefix, msg)
			}
		})
	}
}

func TestNotifyWithoutSystemd(t *testing.T) {
	t.Setenv(notifySocketEnv, "")
	if err := NotifyReady(testContext(t)); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestHandleSignals(t *testing.T) {
	ctx := testContext(t)
	socket := notifySocket(t)

	daemon := &fakeDaemon{reloadErr: errors.New("bad config")}
	sigChan := make(chan os.Signal, 3)
	sigChan <- syscall.SIGHUP
	sigChan <- syscall.SIGHUP
	sigChan <- syscall.SIGTERM

	finished := make(chan struct{})
	go func() {
		handleSignals(ctx, daemon, sigChan)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("signal handler did not return")
	}

	if daemon.reloads != 2 || daemon.shutdowns != 1 {
		t.Fatalf("expected 2 reloads and 1 shutdown, got %d and %d", daemon.reloads, daemon.shutdowns)
	}

	// failed reload reports status before ready
	expected := []string{"RELOADING=1", "STATUS=", "READY=1", "RELOADING=1", "STATUS=", "READY=1", "STOPPING=1"}
	for _, prefix := range expected {
		if msg := receive(t, socket); !strings.HasPrefix(msg, prefix) {
			t.Fatalf("expected %q, got %q", prefix, msg)
		}
	}
}

func TestHandleSignalsStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	daemon := &fakeDaemon{}
	handleSignals(ctx, daemon, make(chan os.Signal))
	if daemon.shutdowns != 0 {
		t.Fatalf("cancelled handler must not shut down the daemon")
	}
}
