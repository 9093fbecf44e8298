// Ordered queue of sent-but-unacknowledged protocol messages stored in a
// buffer pool. Queue order is pool order.
package retransmit

import (
	"context"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/pkg/protocol"
)

type Queue struct {
	pool        *bufpool.Pool
	size        uint64 // queued, not retired
	outstanding uint64 // handed to a peer, not acknowledged
	started     bool
	cursor      bufpool.Handle
	namespace   []string
	stats       queueStats
}

// Interval counters, reset by CollectMetrics
type queueStats struct {
	pushed    uint64
	peeked    uint64
	removed   uint64
	anomalies uint64
}

// Creates new queue over pool. The queue does not own the pool.
func New(pool *bufpool.Pool, namespace []string) (queue *Queue) {
	queue = &Queue{
		pool:      pool,
		namespace: append(append([]string(nil), namespace...), global.NSQueue),
	}
	return
}

// Appends a message already written into the pool
func (queue *Queue) Push(handle bufpool.Handle) {
	queue.size++
	queue.stats.pushed++
	// A drained peek continues with the new message
	if queue.started && queue.cursor.IsNull() {
		queue.cursor = handle
	}
}

// Returns the message at the cursor and moves the cursor on.
// Null when everything has been peeked.
func (queue *Queue) Peek() (handle bufpool.Handle) {
	if !queue.started {
		queue.started = true
		queue.cursor = queue.pool.First()
	}
	if queue.cursor.IsNull() {
		return
	}

	handle = queue.cursor
	queue.cursor = queue.pool.NextMessage(handle)
	queue.outstanding++
	queue.stats.peeked++
	return
}

// Retires every message from the head whose sequence number is at or
// before dsn. Stops at the first later or incomparable sequence number.
func (queue *Queue) RemoveUpTo(ctx context.Context, dsn uint64) (removed int) {
	passedCursor := !queue.started
	cursorRemoved := false

	handle := queue.pool.First()
	for !handle.IsNull() {
		msg := queue.pool.Message(handle)
		if msg == nil {
			break
		}
		seq := protocol.DataDSN(msg)

		result := protocol.CompareSequence(seq, dsn)
		if result == protocol.Greater {
			break
		}
		if result == protocol.Unknown {
			queue.stats.anomalies++
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"acknowledged sequence %d is not comparable with queued sequence %d, stopping removal\n", dsn, seq)
			break
		}

		if handle == queue.cursor {
			passedCursor = true
			cursorRemoved = true
		}
		if !passedCursor && queue.outstanding > 0 {
			queue.outstanding--
		}

		handle = queue.pool.ReleaseMessageAndAdvance(handle)
		if queue.size > 0 {
			queue.size--
		}
		removed++
	}

	if cursorRemoved {
		queue.cursor = queue.pool.First()
	}
	queue.stats.removed += uint64(removed)
	return
}

// Drops every queued message
func (queue *Queue) RemoveAll() (removed int) {
	handle := queue.pool.First()
	for !handle.IsNull() {
		handle = queue.pool.ReleaseMessageAndAdvance(handle)
		removed++
	}
	queue.size = 0
	queue.outstanding = 0
	queue.cursor = bufpool.Null
	queue.stats.removed += uint64(removed)
	return
}

// Restarts the peek at the oldest queued message
func (queue *Queue) Rollback() {
	queue.cursor = queue.pool.First()
	queue.outstanding = 0
	queue.started = true
}

// Messages queued and not retired
func (queue *Queue) Size() uint64 { return queue.size }

// Messages peeked and not retired
func (queue *Queue) Outstanding() uint64 { return queue.outstanding }

// Messages queued but not yet peeked
func (queue *Queue) Unsent() (count uint64) {
	if queue.size > queue.outstanding {
		count = queue.size - queue.outstanding
	}
	return
}

// Reports whether peeking has begun
func (queue *Queue) Started() bool { return queue.started }

// Backing pool
func (queue *Queue) Pool() *bufpool.Pool { return queue.pool }
