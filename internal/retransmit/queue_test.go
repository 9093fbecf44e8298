package retransmit

import (
	"context"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/pkg/protocol"
	"testing"
)

const testRecordLen = 5

func newTestQueue(t *testing.T, chunkSize int) (queue *Queue) {
	t.Helper()
	pool, err := bufpool.New(bufpool.Config{ChunkSize: chunkSize, GrowthFactor: 1})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	queue = New(pool, []string{global.NSTest})
	return
}

func push(t *testing.T, queue *Queue, dsns ...uint64) {
	t.Helper()
	length := protocol.DataMessageLength(testRecordLen)
	for _, dsn := range dsns {
		h, err := queue.Pool().Allocate(length)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		protocol.PutDataHeaders(queue.Pool().Bytes(h, length), 1, protocol.DataHeader{DSN: dsn}, testRecordLen)
		queue.Push(h)
	}
}

func peekAll(queue *Queue) (dsns []uint64) {
	for {
		h := queue.Peek()
		if h.IsNull() {
			return
		}
		dsns = append(dsns, protocol.DataDSN(queue.Pool().Message(h)))
	}
}

// Remaining DSNs in pool order
func queued(queue *Queue) (dsns []uint64) {
	pool := queue.Pool()
	for h := pool.First(); !h.IsNull(); h = pool.NextMessage(h) {
		dsns = append(dsns, protocol.DataDSN(pool.Message(h)))
	}
	return
}

func equal(a, b []uint64) bool {
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

func TestAckScenario(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, 64)
	push(t, queue, 10, 11, 12)

	if got := peekAll(queue); !equal(got, []uint64{10, 11, 12}) {
		t.Fatalf("unexpected peek order %v", got)
	}
	if queue.Outstanding() != 3 {
		t.Fatalf("expected 3 outstanding, got %d", queue.Outstanding())
	}

	if removed := queue.RemoveUpTo(ctx, 11); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if got := queued(queue); !equal(got, []uint64{12}) {
		t.Fatalf("expected only 12 queued, got %v", got)
	}
	if queue.Size() != 1 || queue.Outstanding() != 1 {
		t.Fatalf("expected size 1 outstanding 1, got %d/%d", queue.Size(), queue.Outstanding())
	}

	// Idempotent
	if removed := queue.RemoveUpTo(ctx, 11); removed != 0 {
		t.Fatalf("expected no further removal, got %d", removed)
	}
}

func TestRemoveUpToUnsentResetsCursor(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, 64)
	push(t, queue, 1, 2, 3, 4)

	queue.Peek()
	queue.Peek()
	// Acknowledgment covers a message that was never peeked
	if removed := queue.RemoveUpTo(ctx, 3); removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if queue.Outstanding() != 0 {
		t.Fatalf("expected outstanding clamped to 0, got %d", queue.Outstanding())
	}
	if got := peekAll(queue); !equal(got, []uint64{4}) {
		t.Fatalf("expected cursor at 4, got %v", got)
	}
}

func TestRemoveUpToStopsOnUnknown(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	ctx := logctx.New(context.Background(), global.NSTest, global.VerbosityStandard, done)

	queue := newTestQueue(t, 256)
	push(t, queue, 5, 6)

	if removed := queue.RemoveUpTo(ctx, 6+protocol.SequenceWindow+1); removed != 0 {
		t.Fatalf("expected no removal on incomparable ack, got %d", removed)
	}
	if queue.Size() != 2 {
		t.Fatalf("queue must be untouched, size %d", queue.Size())
	}
	if logctx.GetLogger(ctx).Pending() != 1 {
		t.Fatalf("expected anomaly to be logged")
	}
}

func TestRemoveUpToAcrossWrap(t *testing.T) {
	queue := newTestQueue(t, 256)
	top := ^uint64(0)
	push(t, queue, top-1, top, 0, 1)

	if removed := queue.RemoveUpTo(context.Background(), 0); removed != 3 {
		t.Fatalf("expected 3 removed across wrap, got %d", removed)
	}
	if got := queued(queue); !equal(got, []uint64{1}) {
		t.Fatalf("unexpected remaining %v", got)
	}
}

func TestFailoverResend(t *testing.T) {
	tests := []struct {
		name  string
		total int
		acked int
	}{
		{"none acked", 6, 0},
		{"some acked", 6, 4},
		{"all but one acked", 10, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			// Small chunks so the backlog spans several chunks
			queue := newTestQueue(t, protocol.DataMessageLength(testRecordLen)*2)

			for i := range tt.total {
				push(t, queue, uint64(100+i))
			}
			peekAll(queue)
			if tt.acked > 0 {
				queue.RemoveUpTo(ctx, uint64(100+tt.acked-1))
			}

			queue.Rollback()
			if queue.Outstanding() != 0 {
				t.Fatalf("rollback must clear outstanding")
			}

			resent := peekAll(queue)
			if len(resent) != tt.total-tt.acked {
				t.Fatalf("expected %d resent, got %d", tt.total-tt.acked, len(resent))
			}
			for i, dsn := range resent {
				if dsn != uint64(100+tt.acked+i) {
					t.Fatalf("resend out of order: %v", resent)
				}
			}
		})
	}
}

func TestPushAfterDrainedPeek(t *testing.T) {
	queue := newTestQueue(t, 128)

	if h := queue.Peek(); !h.IsNull() || !queue.Started() {
		t.Fatalf("empty peek must return null and mark started")
	}
	push(t, queue, 7)
	if got := peekAll(queue); !equal(got, []uint64{7}) {
		t.Fatalf("expected pushed message after drained peek, got %v", got)
	}
	push(t, queue, 8, 9)
	if got := peekAll(queue); !equal(got, []uint64{8, 9}) {
		t.Fatalf("expected continued peek, got %v", got)
	}
	if queue.Unsent() != 0 || queue.Outstanding() != 3 {
		t.Fatalf("unexpected counters unsent=%d outstanding=%d", queue.Unsent(), queue.Outstanding())
	}
}

func TestRemoveAll(t *testing.T) {
	queue := newTestQueue(t, 64)
	push(t, queue, 1, 2, 3)
	queue.Peek()

	if removed := queue.RemoveAll(); removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if queue.Size() != 0 || queue.Outstanding() != 0 || queue.Pool().UsedMemory() != 0 {
		t.Fatalf("expected empty queue and pool")
	}
	if !queue.Peek().IsNull() {
		t.Fatalf("expected nothing to peek")
	}
}
