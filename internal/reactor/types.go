package reactor

import (
	"context"
	"errors"
	"ipdrexporter/internal/queue/mpmc"
	"sync/atomic"
	"time"
)

var (
	ErrMailboxFull = errors.New("reactor mailbox full")
	ErrStopped     = errors.New("reactor stopped")
)

// Identifies a scheduled timer. Zero is never issued.
type TimerID uint64

type timer struct {
	id       TimerID
	deadline time.Time
	interval time.Duration
	periodic bool
	fn       func()
	index    int // position in heap, -1 when not queued
}

// Deadline ordered timers
type timerHeap []*timer

// Single goroutine event loop. Work from other goroutines enters through Post.
// Timers and everything they touch belong to the loop goroutine.
type Loop struct {
	ctx       context.Context
	namespace []string
	mailbox   *mpmc.Queue[func()]
	timers    timerHeap
	byID      map[TimerID]*timer
	lastID    TimerID
	now       func() time.Time
	running   bool
	stats     loopStats
}

type loopStats struct {
	handled   atomic.Uint64 // mailbox functions run
	fired     atomic.Uint64 // timer callbacks run
	cancelled atomic.Uint64
	panics    atomic.Uint64
	pending   atomic.Int64 // timers scheduled, read off-loop by metrics
}
