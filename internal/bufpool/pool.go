// Chunk based sub-allocator for protocol messages
package bufpool

import (
	"fmt"
	"ipdrexporter/pkg/protocol"

	"github.com/pbnjay/memory"
)

// Creates new pool and preallocates the initial chunks onto the free list
func New(config Config) (pool *Pool, err error) {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.GrowthFactor < 1 {
		config.GrowthFactor = DefaultGrowthFactor
	}
	if config.MinMessage <= 0 {
		config.MinMessage = DefaultMinMessage
	}
	if config.InitialChunks < 0 {
		config.InitialChunks = 0
	}

	pool = &Pool{
		config:     config,
		chunkSize:  config.ChunkSize,
		usedHead:   noChunk,
		usedTail:   noChunk,
		freeHead:   noChunk,
		vacantHead: noChunk,
	}

	for range config.InitialChunks {
		var index int32
		index, err = pool.newChunk(pool.chunkSize)
		if err != nil {
			err = fmt.Errorf("failed to preallocate chunks: %w", err)
			return
		}
		pool.pushFree(index)
	}
	return
}

// Derives a memory cap as a fraction of host memory (free memory when
// known, total otherwise)
func SystemMemoryCap(divisor uint64) (limit uint64) {
	if divisor == 0 {
		divisor = 1
	}
	available := memory.FreeMemory()
	if available == 0 {
		available = memory.TotalMemory()
	}
	limit = available / divisor
	return
}

// Sub-allocates size bytes
func (pool *Pool) Allocate(size int) (handle Handle, err error) {
	if pool.closed {
		err = ErrClosed
		return
	}
	if size <= 0 {
		err = fmt.Errorf("%w: %d", ErrInvalidSize, size)
		return
	}

	// Room in tail chunk
	if pool.usedTail != noChunk {
		tail := &pool.chunks[pool.usedTail]
		if len(tail.buf)-tail.end >= size {
			handle = pool.commit(pool.usedTail, size)
			return
		}
	}

	// First free chunk large enough
	prev := noChunk
	for index := pool.freeHead; index != noChunk; index = pool.chunks[index].nextFree {
		if len(pool.chunks[index].buf) >= size {
			pool.unlinkFree(index, prev)
			pool.pushUsed(index)
			handle = pool.commit(index, size)
			return
		}
		prev = index
	}

	// Grow
	newSize := max(pool.chunkSize, size*pool.config.GrowthFactor)
	if newSize < size {
		pool.stats.failures++
		err = fmt.Errorf("%w: computed chunk size %d smaller than request %d", ErrOutOfMemory, newSize, size)
		return
	}
	if newSize > pool.chunkSize {
		// Free chunks are all too small from now on
		pool.evictFree()
		pool.chunkSize = newSize
	}

	index, err := pool.newChunk(newSize)
	if err != nil {
		return
	}
	pool.pushUsed(index)
	handle = pool.commit(index, size)
	return
}

// Claims the largest contiguous room available without growing the chunk
// size. The whole room is committed; give back the unused tail with Release.
func (pool *Pool) AllocateMax() (handle Handle, size int, err error) {
	if pool.closed {
		err = ErrClosed
		return
	}

	if pool.usedTail != noChunk {
		tail := &pool.chunks[pool.usedTail]
		room := len(tail.buf) - tail.end
		if room >= pool.config.MinMessage {
			size = room
			handle = pool.commit(pool.usedTail, size)
			return
		}
	}

	index := pool.freeHead
	if index != noChunk {
		pool.unlinkFree(index, noChunk)
	} else {
		index, err = pool.newChunk(pool.chunkSize)
		if err != nil {
			return
		}
	}
	pool.pushUsed(index)
	size = len(pool.chunks[index].buf)
	handle = pool.commit(index, size)
	return
}

// Releases a region at the head or the tail of its chunk.
// Regions in the middle of a chunk are left alone.
func (pool *Pool) Release(handle Handle, size int) (released bool) {
	index, ok := pool.resolve(handle)
	if !ok || size <= 0 {
		return
	}
	c := &pool.chunks[index]

	switch {
	case handle.off == c.start && handle.off+size <= c.end:
		c.start += size
	case handle.off+size == c.end && handle.off > c.start:
		c.end = handle.off
	default:
		return
	}

	pool.usedMemory -= uint64(size)
	pool.stats.releases++
	released = true

	if c.start == c.end {
		pool.recycle(index)
	}
	return
}

// Releases a whole protocol message using the length from its header
func (pool *Pool) ReleaseMessage(handle Handle) (released bool) {
	length := pool.messageLength(handle)
	if length == 0 {
		return
	}
	released = pool.Release(handle, length)
	return
}

// Handle to the region directly after handle+size, crossing into the next
// used chunk when this one is exhausted. Null at end of pool.
func (pool *Pool) NextBuffer(handle Handle, size int) (next Handle) {
	index, ok := pool.resolve(handle)
	if !ok {
		return
	}
	c := &pool.chunks[index]
	if handle.off+size < c.end {
		next = Handle{slot: handle.slot, gen: c.gen, off: handle.off + size}
		return
	}
	next = pool.headOf(c.next)
	return
}

// Handle to the message following the one at handle
func (pool *Pool) NextMessage(handle Handle) (next Handle) {
	length := pool.messageLength(handle)
	if length == 0 {
		return
	}
	next = pool.NextBuffer(handle, length)
	return
}

// Advances past handle+size, releasing the region first when it is the
// head of its chunk. Regions elsewhere are only skipped.
func (pool *Pool) ReleaseAndAdvance(handle Handle, size int) (next Handle) {
	index, ok := pool.resolve(handle)
	if !ok {
		return
	}
	next = pool.NextBuffer(handle, size)
	if handle.off == pool.chunks[index].start {
		pool.Release(handle, size)
	}
	return
}

// Message form of ReleaseAndAdvance
func (pool *Pool) ReleaseMessageAndAdvance(handle Handle) (next Handle) {
	length := pool.messageLength(handle)
	if length == 0 {
		return
	}
	next = pool.ReleaseAndAdvance(handle, length)
	return
}

// Recycles every chunk before handle's chunk, then drops the start of
// handle's chunk through handle+size
func (pool *Pool) DropUntil(handle Handle, size int) {
	target, ok := pool.resolve(handle)
	if !ok {
		return
	}

	for index := pool.usedHead; index != noChunk && index != target; index = pool.usedHead {
		c := &pool.chunks[index]
		pool.usedMemory -= uint64(c.end - c.start)
		pool.recycle(index)
	}

	c := &pool.chunks[target]
	cut := min(handle.off+size, c.end)
	if cut > c.start {
		pool.usedMemory -= uint64(cut - c.start)
		c.start = cut
	}
	if c.start == c.end {
		pool.recycle(target)
	}
}

// Handle to the oldest region in the pool, Null when empty
func (pool *Pool) First() (handle Handle) {
	handle = pool.headOf(pool.usedHead)
	return
}

// Borrowed view of size bytes at handle, nil when stale or out of range
func (pool *Pool) Bytes(handle Handle, size int) (view []byte) {
	index, ok := pool.resolve(handle)
	if !ok || size < 0 {
		return
	}
	c := &pool.chunks[index]
	if handle.off+size > c.end {
		return
	}
	view = c.buf[handle.off : handle.off+size : handle.off+size]
	return
}

// Borrowed view of the whole protocol message at handle
func (pool *Pool) Message(handle Handle) (view []byte) {
	view = pool.Bytes(handle, pool.messageLength(handle))
	return
}

// Region handle moved forward by delta within the same chunk
func (pool *Pool) Offset(handle Handle, delta int) (moved Handle) {
	if handle.IsNull() {
		return
	}
	moved = handle
	moved.off += delta
	return
}

// Bytes handed out and not released
func (pool *Pool) UsedMemory() uint64 { return pool.usedMemory }

// Bytes held by all chunks
func (pool *Pool) AllocatedMemory() uint64 { return pool.allocatedMemory }

// Chunks holding memory (used + free)
func (pool *Pool) ChunkCount() int { return pool.usedChunks + pool.freeChunks }

// Chunks on the used list
func (pool *Pool) UsedChunks() int { return pool.usedChunks }

// Chunks on the free list
func (pool *Pool) FreeChunks() int { return pool.freeChunks }

// Current size for new chunks
func (pool *Pool) ChunkSize() int { return pool.chunkSize }

// Releases all chunk memory. Every outstanding handle goes stale.
func (pool *Pool) Close() {
	if pool.closed {
		return
	}
	for index := range pool.chunks {
		c := &pool.chunks[index]
		c.buf = nil
		c.gen++
		c.inUse = false
	}
	pool.chunks = nil
	pool.usedHead, pool.usedTail = noChunk, noChunk
	pool.freeHead, pool.vacantHead = noChunk, noChunk
	pool.usedChunks, pool.freeChunks = 0, 0
	pool.usedMemory, pool.allocatedMemory = 0, 0
	pool.closed = true
}

// Reports whether Close was called
func (pool *Pool) Closed() bool { return pool.closed }

func (pool *Pool) messageLength(handle Handle) (length int) {
	length = protocol.MessageLength(pool.Bytes(handle, protocol.LenHeader))
	return
}
