// Mailbox driven event loop with a timer heap
package reactor

import (
	"container/heap"
	"context"
	"fmt"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/internal/queue/mpmc"
	"runtime/debug"
	"time"
)

// Creates a loop with a mailbox of the given power-of-two size
func New(ctx context.Context, namespace []string, mailboxSize int) (loop *Loop, err error) {
	if mailboxSize <= 0 {
		mailboxSize = global.DefaultMailboxSize
	}

	ns := append(append([]string{}, namespace...), global.NSReactor)
	mailbox, err := mpmc.New[func()](ns, uint64(mailboxSize))
	if err != nil {
		err = fmt.Errorf("failed creating reactor mailbox: %w", err)
		return
	}

	loop = &Loop{
		ctx:       logctx.AppendCtxTag(ctx, global.NSReactor),
		namespace: ns,
		mailbox:   mailbox,
		byID:      make(map[TimerID]*timer),
		now:       time.Now,
	}
	return
}

// Queues fn to run on the loop goroutine. Safe from any goroutine.
func (loop *Loop) Post(fn func()) (err error) {
	if loop.mailbox.Closed() {
		err = ErrStopped
		return
	}
	if !loop.mailbox.Push(fn) {
		err = ErrMailboxFull
		if loop.mailbox.Closed() {
			err = ErrStopped
		}
	}
	return
}

// Like Post but waits for mailbox room
func (loop *Loop) PostWait(ctx context.Context, fn func()) (err error) {
	err = loop.mailbox.PushBlocking(ctx, fn)
	if err == mpmc.ErrClosed {
		err = ErrStopped
	}
	return
}

// Runs fn after interval, repeating when periodic. Loop goroutine only.
func (loop *Loop) Schedule(interval time.Duration, periodic bool, fn func()) (id TimerID) {
	if periodic && interval <= 0 {
		interval = time.Millisecond
	}
	loop.lastID++
	id = loop.lastID

	entry := &timer{
		id:       id,
		deadline: loop.now().Add(interval),
		interval: interval,
		periodic: periodic,
		fn:       fn,
	}
	loop.byID[id] = entry
	heap.Push(&loop.timers, entry)
	loop.stats.pending.Store(int64(len(loop.byID)))
	return
}

// Stops a timer. Unknown or already fired ids are ignored. Loop goroutine only.
func (loop *Loop) Cancel(id TimerID) {
	entry, ok := loop.byID[id]
	if !ok {
		return
	}
	delete(loop.byID, id)
	if entry.index >= 0 {
		heap.Remove(&loop.timers, entry.index)
	}
	loop.stats.cancelled.Add(1)
	loop.stats.pending.Store(int64(len(loop.byID)))
}

// Number of pending timers
func (loop *Loop) Timers() (count int) {
	count = len(loop.byID)
	return
}

// Processes mailbox and timers until ctx ends or Stop is called.
// Remaining mailbox entries are run before returning.
func (loop *Loop) Run(ctx context.Context) (err error) {
	if loop.running {
		err = fmt.Errorf("reactor already running")
		return
	}
	loop.running = true
	defer func() { loop.running = false }()

	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	for {
		loop.drain()
		next := loop.fireDue(loop.now())
		loop.drain()

		if loop.mailbox.Closed() {
			return
		}

		wait := time.Hour
		if !next.IsZero() {
			wait = next.Sub(loop.now())
			if wait < 0 {
				wait = 0
			}
		}
		if !wake.Stop() {
			select {
			case <-wake.C:
			default:
			}
		}
		wake.Reset(wait)

		select {
		case <-ctx.Done():
			loop.mailbox.Close()
			loop.drain()
			err = ctx.Err()
			return
		case <-loop.mailbox.Ready():
		case <-loop.mailbox.Done():
		case <-wake.C:
		}
	}
}

// Closes the mailbox. Run returns after draining it.
func (loop *Loop) Stop() {
	loop.mailbox.Close()
}

// Runs every queued function
func (loop *Loop) drain() {
	for {
		fn, ok := loop.mailbox.TryPop()
		if !ok {
			return
		}
		if fn == nil {
			continue
		}
		loop.stats.handled.Add(1)
		loop.invoke(fn)
	}
}

// Fires timers due at now. Returns the next deadline, zero if none.
func (loop *Loop) fireDue(now time.Time) (next time.Time) {
	for len(loop.timers) > 0 {
		entry := loop.timers[0]
		if entry.deadline.After(now) {
			next = entry.deadline
			return
		}
		heap.Pop(&loop.timers)

		if entry.periodic {
			entry.deadline = entry.deadline.Add(entry.interval)
			if !entry.deadline.After(now) {
				entry.deadline = now.Add(entry.interval)
			}
			heap.Push(&loop.timers, entry)
		} else {
			delete(loop.byID, entry.id)
			loop.stats.pending.Store(int64(len(loop.byID)))
		}

		loop.stats.fired.Add(1)
		loop.invoke(entry.fn)
	}
	return
}

// Runs a callback, logging instead of crashing the loop on panic
func (loop *Loop) invoke(fn func()) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			loop.stats.panics.Add(1)
			logctx.LogEvent(loop.ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in reactor callback: %v\n%s", fatalError, debug.Stack())
		}
	}()
	fn()
}
