package bufpool

import "fmt"

// Validates handle against the arena, returning its chunk index
func (pool *Pool) resolve(handle Handle) (index int32, ok bool) {
	if handle.slot == 0 || int(handle.slot) > len(pool.chunks) {
		return
	}
	index = int32(handle.slot - 1)
	c := &pool.chunks[index]
	if c.gen != handle.gen || !c.inUse || handle.off < c.start || handle.off > c.end {
		return
	}
	ok = true
	return
}

// Handle to the data start of a used chunk
func (pool *Pool) headOf(index int32) (handle Handle) {
	if index == noChunk {
		return
	}
	c := &pool.chunks[index]
	handle = Handle{slot: uint32(index) + 1, gen: c.gen, off: c.start}
	return
}

// Hands out size bytes from the end of a used chunk
func (pool *Pool) commit(index int32, size int) (handle Handle) {
	c := &pool.chunks[index]
	handle = Handle{slot: uint32(index) + 1, gen: c.gen, off: c.end}
	c.end += size
	pool.usedMemory += uint64(size)
	pool.stats.allocations++
	return
}

// Creates a chunk in a vacant arena slot (or a new one) without linking it
func (pool *Pool) newChunk(size int) (index int32, err error) {
	if pool.config.MemoryCap > 0 && pool.allocatedMemory+uint64(size) > pool.config.MemoryCap {
		pool.stats.failures++
		err = fmt.Errorf("%w: chunk of %d bytes exceeds cap %d (allocated %d)",
			ErrOutOfMemory, size, pool.config.MemoryCap, pool.allocatedMemory)
		return
	}

	if pool.vacantHead != noChunk {
		index = pool.vacantHead
		pool.vacantHead = pool.chunks[index].nextFree
	} else {
		pool.chunks = append(pool.chunks, chunk{})
		index = int32(len(pool.chunks) - 1)
	}

	c := &pool.chunks[index]
	c.buf = make([]byte, size)
	c.start, c.end = 0, 0
	c.prev, c.next, c.nextFree = noChunk, noChunk, noChunk
	c.inUse = false

	pool.allocatedMemory += uint64(size)
	pool.stats.growths++
	return
}

func (pool *Pool) pushUsed(index int32) {
	c := &pool.chunks[index]
	c.inUse = true
	c.prev = pool.usedTail
	c.next = noChunk
	if pool.usedTail != noChunk {
		pool.chunks[pool.usedTail].next = index
	} else {
		pool.usedHead = index
	}
	pool.usedTail = index
	pool.usedChunks++
}

func (pool *Pool) unlinkUsed(index int32) {
	c := &pool.chunks[index]
	if c.prev != noChunk {
		pool.chunks[c.prev].next = c.next
	} else {
		pool.usedHead = c.next
	}
	if c.next != noChunk {
		pool.chunks[c.next].prev = c.prev
	} else {
		pool.usedTail = c.prev
	}
	c.prev, c.next = noChunk, noChunk
	c.inUse = false
	pool.usedChunks--
}

func (pool *Pool) pushFree(index int32) {
	c := &pool.chunks[index]
	c.start, c.end = 0, 0
	c.nextFree = pool.freeHead
	pool.freeHead = index
	pool.freeChunks++
}

func (pool *Pool) unlinkFree(index, prev int32) {
	next := pool.chunks[index].nextFree
	if prev == noChunk {
		pool.freeHead = next
	} else {
		pool.chunks[prev].nextFree = next
	}
	pool.chunks[index].nextFree = noChunk
	pool.freeChunks--
}

// Moves an emptied used chunk to the free list, invalidating its handles
func (pool *Pool) recycle(index int32) {
	pool.unlinkUsed(index)
	pool.chunks[index].gen++
	pool.pushFree(index)
}

// Releases the memory of every free chunk
func (pool *Pool) evictFree() {
	for pool.freeHead != noChunk {
		index := pool.freeHead
		c := &pool.chunks[index]
		pool.freeHead = c.nextFree
		pool.freeChunks--

		pool.allocatedMemory -= uint64(len(c.buf))
		c.buf = nil
		c.gen++
		c.nextFree = pool.vacantHead
		pool.vacantHead = index
		pool.stats.evictions++
	}
}
