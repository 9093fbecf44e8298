// Asynchronous TCP transport for the record exporter
package tcp

import (
	"context"
	"errors"
	"ipdrexporter/internal/exporter"
	"net"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotConnected      = errors.New("connection not established")
	ErrOutboxFull        = errors.New("outbound queue full")
	ErrNoHandler         = errors.New("no handler attached")
)

// Receives connection events. Calls arrive on the poster's goroutine.
type Handler interface {
	OnConnect(id exporter.ConnID)
	OnData(id exporter.ConnID, frame []byte)
	OnDisconnect(id exporter.ConnID, cause error)
}

// Runs callbacks on the event loop goroutine
type Poster interface {
	PostWait(ctx context.Context, fn func()) error
}

type Config struct {
	DialTimeout    time.Duration
	DialAttempts   int           // attempts per Connect before reporting failure
	MaxDialDelay   time.Duration // backoff ceiling between attempts
	OutboxDepth    int           // frames buffered per connection, power of two
	ReadBuffer     int
	SendBuffer     int // SO_SNDBUF, 0 keeps the system default
	KeepAlive      bool
	DisableNoDelay bool
}

type dialFunc func(ctx context.Context, address string) (net.Conn, error)

type Transport struct {
	ctx     context.Context
	config  Config
	poster  Poster
	handler Handler
	dial    dialFunc

	lastID atomix.Uint64
	mutex  sync.Mutex
	conns  map[exporter.ConnID]*conn
	wg     sync.WaitGroup

	Metrics MetricStorage
}

type conn struct {
	id      exporter.ConnID
	address string

	ctx    context.Context
	cancel context.CancelFunc

	// producer is the loop goroutine, consumer is the writer
	outbox lfq.SPSC[[]byte]
	wake   chan struct{}

	connected atomix.Uint32
	closed    atomix.Uint32
}

type MetricStorage struct {
	Dials         atomix.Uint64
	DialFailures  atomix.Uint64
	FramesSent    atomix.Uint64
	BytesSent     atomix.Uint64
	FramesRecv    atomix.Uint64
	BytesRecv     atomix.Uint64
	OutboxFull    atomix.Uint64
	WriteFailures atomix.Uint64
}
