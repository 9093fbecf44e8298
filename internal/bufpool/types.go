package bufpool

import "errors"

var (
	ErrOutOfMemory = errors.New("buffer pool out of memory")
	ErrInvalidSize = errors.New("invalid allocation size")
	ErrClosed      = errors.New("buffer pool closed")
)

const (
	DefaultChunkSize     int = 64 * 1024
	DefaultInitialChunks int = 4
	DefaultGrowthFactor  int = 2
	DefaultMinMessage    int = 64

	noChunk int32 = -1
)

type Config struct {
	ChunkSize     int      // Size of every newly created chunk (may grow for oversize requests)
	InitialChunks int      // Chunks created up front onto the free list
	GrowthFactor  int      // Multiplier applied to oversize requests, at least 1
	MinMessage    int      // Smallest tail room AllocateMax will hand out
	MemoryCap     uint64   // Upper bound on chunk memory, 0 for unlimited
	Namespace     []string // Metric namespace
}

// Region inside a pool chunk. Handles never own memory; they go stale
// (Bytes returns nil) once the chunk they point into is recycled.
// The zero value is the null handle.
type Handle struct {
	slot uint32 // chunk index + 1, 0 for null
	gen  uint32
	off  int
}

// Null handle, returned at end of pool
var Null = Handle{}

// Reports whether the handle points nowhere
func (h Handle) IsNull() bool {
	return h.slot == 0
}

// Chunk arena entry. List links are arena indices.
type chunk struct {
	buf      []byte
	start    int // data-start
	end      int // data-end
	gen      uint32
	prev     int32 // used list
	next     int32 // used list
	nextFree int32 // free or vacant list
	inUse    bool  // on used list
}

// Chunk allocator with used/free lists over an index arena.
// Not safe for concurrent use.
type Pool struct {
	config    Config
	chunkSize int

	chunks     []chunk
	usedHead   int32
	usedTail   int32
	freeHead   int32
	vacantHead int32 // arena slots whose memory was released

	usedChunks int
	freeChunks int

	usedMemory      uint64 // bytes handed out and not yet released
	allocatedMemory uint64 // bytes held by chunks (used + free)
	closed          bool

	stats poolStats
}

// Interval counters, reset by CollectMetrics
type poolStats struct {
	allocations uint64
	releases    uint64
	growths     uint64
	evictions   uint64
	failures    uint64
}
