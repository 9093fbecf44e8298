// Reference counted ownership of shared values with per-value teardown.
// Refs are used from a single goroutine (the reactor) and are not locked,
// but the live counters are atomic so metrics can be read from anywhere.
package ownership

import (
	"fmt"
	"sync/atomic"
)

// Process wide counts of live and torn down references
var (
	liveRefs     atomic.Int64
	tornDownRefs atomic.Uint64
)

type Ref[T any] struct {
	value    *T
	count    int
	teardown func(*T)
}

// Creates new reference with count 1.
// teardown runs once when the final reference is released (may be nil).
func New[T any](value *T, teardown func(*T)) (ref *Ref[T]) {
	ref = &Ref[T]{
		value:    value,
		count:    1,
		teardown: teardown,
	}
	liveRefs.Add(1)
	return
}

// Adds a reference to the same value
func (ref *Ref[T]) Dup() *Ref[T] {
	if ref.count <= 0 {
		panic(fmt.Sprintf("ownership: duplicate of released %T", ref.value))
	}
	ref.count++
	return ref
}

// Drops one reference. Returns true when this was the final one and the
// value was torn down.
func (ref *Ref[T]) Release() (final bool) {
	if ref == nil || ref.count <= 0 {
		return
	}
	ref.count--
	if ref.count > 0 {
		return
	}

	if ref.teardown != nil {
		ref.teardown(ref.value)
	}
	ref.value = nil
	liveRefs.Add(-1)
	tornDownRefs.Add(1)
	final = true
	return
}

// Borrowed pointer to the value, nil after final release
func (ref *Ref[T]) Get() (value *T) {
	if ref == nil {
		return
	}
	value = ref.value
	return
}

// Current reference count
func (ref *Ref[T]) Count() (count int) {
	if ref == nil {
		return
	}
	count = ref.count
	return
}

// Process wide live/torn down reference totals
func Stats() (live int64, tornDown uint64) {
	live = liveRefs.Load()
	tornDown = tornDownRefs.Load()
	return
}
