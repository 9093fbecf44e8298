// Multi-producer multi-consumer lock-free ring buffer queue
package mpmc

import (
	"context"
	"errors"
	"fmt"
	"ipdrexporter/internal/global"
	"runtime"

	"code.hybscloud.com/iox"
)

var ErrClosed = errors.New("queue closed")

// Creates a new queue
func New[T any](namespace []string, capacity uint64) (queue *Queue[T], err error) {
	if capacity < 2 {
		err = fmt.Errorf("capacity must be greater than or equal to 2")
		return
	}
	if (capacity & (capacity - 1)) != 0 {
		err = fmt.Errorf("capacity must be a power of two")
		return
	}

	buf := make([]cell[T], capacity)
	for i := uint64(0); i < capacity; i++ {
		buf[i].seq.Store(i)
	}

	ns := make([]string, 0, len(namespace)+1)
	ns = append(ns, namespace...)
	queue = &Queue[T]{
		Namespace: append(ns, global.NSQueue),
		Size:      int(capacity),
		mask:      capacity - 1,
		buf:       buf,
		notEmpty:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	return
}

// Attempts to write an element (non success = queue full or closed)
func (queue *Queue[T]) Push(value T) (success bool) {
	if queue.closed.Load() {
		return
	}
	queue.Metrics.PushAttempts.Add(1)

	var pos, seq uint64
	var slot *cell[T]

	for {
		pos = queue.tail.Load()
		slot = &queue.buf[pos&queue.mask]
		seq = slot.seq.Load()

		if seq == pos {
			if queue.tail.CompareAndSwap(pos, pos+1) {
				queue.Metrics.PushSuccess.Add(1)
				break
			}
			queue.Metrics.PushCASRetries.Add(1)
		} else if seq < pos {
			queue.Metrics.PushFull.Add(1)
			return
		} else {
			queue.Metrics.PushSeqAhead.Add(1)
			runtime.Gosched()
		}
	}

	slot.data = value
	slot.seq.Store(pos + 1)
	queue.Metrics.Depth.Add(1)

	// notify blocked consumers, non-blocking
	select {
	case queue.notEmpty <- struct{}{}:
	default:
	}

	success = true
	return
}

// Retries Push with adaptive backoff until it succeeds, ctx ends or the queue closes
func (queue *Queue[T]) PushBlocking(ctx context.Context, value T) (err error) {
	var bo iox.Backoff
	for {
		if queue.Push(value) {
			return
		}
		if queue.closed.Load() {
			err = ErrClosed
			return
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return
		default:
		}
		bo.Wait()
	}
}

// Reads one element without waiting
func (queue *Queue[T]) TryPop() (out T, success bool) {
	queue.Metrics.PopAttempts.Add(1)

	for {
		pos := queue.head.Load()
		slot := &queue.buf[pos&queue.mask]
		seq := slot.seq.Load()
		readySeq := pos + 1

		if seq == readySeq {
			if queue.head.CompareAndSwap(pos, pos+1) {
				out = slot.data
				var zero T
				slot.data = zero
				slot.seq.Store(pos + queue.mask + 1)

				queue.Metrics.PopSuccess.Add(1)
				decrement(&queue.Metrics.Depth)
				success = true
				return
			}
			queue.Metrics.PopCASRetries.Add(1)
			continue
		}
		if seq < readySeq {
			queue.Metrics.PopEmpty.Add(1)
			return
		}
		// another consumer ahead, retry
		queue.Metrics.PopSeqBehind.Add(1)
	}
}

// Reads one element, waiting for a producer. Returns false on ctx end,
// or once the queue is closed and drained.
func (queue *Queue[T]) Pop(ctx context.Context) (out T, success bool) {
	for {
		out, success = queue.TryPop()
		if success {
			return
		}
		if queue.closed.Load() && queue.head.Load() == queue.tail.Load() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-queue.notEmpty:
			queue.Metrics.PopWaitSignals.Add(1)
		case <-queue.done:
		}
	}
}

// Channel signalled (best effort) when an element is pushed
func (queue *Queue[T]) Ready() (ready <-chan struct{}) {
	ready = queue.notEmpty
	return
}

// Channel closed once Close is called
func (queue *Queue[T]) Done() (done <-chan struct{}) {
	done = queue.done
	return
}

// Stops producers and wakes consumers. Queued items remain poppable.
func (queue *Queue[T]) Close() {
	if queue.closed.CompareAndSwap(false, true) {
		close(queue.done)
	}
}

func (queue *Queue[T]) Closed() (closed bool) {
	closed = queue.closed.Load()
	return
}

// Approximate number of queued items
func (queue *Queue[T]) Len() (count int) {
	count = int(queue.Metrics.Depth.Load())
	return
}
