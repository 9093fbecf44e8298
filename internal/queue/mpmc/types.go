package mpmc

import "sync/atomic"

type cell[T any] struct {
	seq  atomic.Uint64
	data T
}

// Bounded lock-free ring with power-of-two capacity.
// Any number of goroutines may push; consumers block in Pop until data or close.
type Queue[T any] struct {
	Namespace []string
	Size      int
	mask      uint64
	buf       []cell[T]
	head      atomic.Uint64
	tail      atomic.Uint64
	notEmpty  chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	Metrics   MetricStorage
}

type MetricStorage struct {
	Depth atomic.Uint64 // Current items in queue

	PushAttempts   atomic.Uint64 // every Push call
	PushSuccess    atomic.Uint64 // CAS success
	PushCASRetries atomic.Uint64 // CAS failed (seq==pos but CAS failed)
	PushFull       atomic.Uint64 // rejected, no free cell
	PushSeqAhead   atomic.Uint64 // cell not yet released by a consumer

	PopAttempts    atomic.Uint64 // every Pop call
	PopSuccess     atomic.Uint64 // CAS success
	PopCASRetries  atomic.Uint64 // CAS failed
	PopEmpty       atomic.Uint64 // found nothing to read
	PopWaitSignals atomic.Uint64 // woken by a producer
	PopSeqBehind   atomic.Uint64 // another consumer got there first
}
