package tcp

import (
	"context"
	"fmt"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"net"
	"strconv"
	"syscall"
	"time"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

const (
	defaultDialTimeout  time.Duration = 5 * time.Second
	defaultDialAttempts int           = 3
	defaultMaxDialDelay time.Duration = 20 * time.Second
	defaultOutboxDepth  int           = 4096
	defaultReadBuffer   int           = 64 << 10
)

func (config *Config) setDefaults() {
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaultDialTimeout
	}
	if config.DialAttempts <= 0 {
		config.DialAttempts = defaultDialAttempts
	}
	if config.MaxDialDelay <= 0 {
		config.MaxDialDelay = defaultMaxDialDelay
	}
	if config.OutboxDepth < 2 {
		config.OutboxDepth = defaultOutboxDepth
	}
	if config.ReadBuffer <= 0 {
		config.ReadBuffer = defaultReadBuffer
	}
}

// Creates new transport. Callbacks are posted through poster once a handler is attached.
func New(ctx context.Context, config Config, poster Poster) (transport *Transport) {
	config.setDefaults()
	transport = &Transport{
		ctx:    logctx.AppendCtxTag(ctx, global.NSTransport),
		config: config,
		poster: poster,
		conns:  make(map[exporter.ConnID]*conn),
	}
	transport.dial = transport.dialTCP
	return
}

// Sets the receiver of connection events. Must be called before Connect.
func (transport *Transport) Attach(handler Handler) {
	transport.handler = handler
}

// Starts an asynchronous connect. The outcome arrives as OnConnect or OnDisconnect.
func (transport *Transport) Connect(addr string, port uint16) (id exporter.ConnID, err error) {
	if transport.handler == nil {
		err = ErrNoHandler
		return
	}
	if transport.ctx.Err() != nil {
		err = fmt.Errorf("transport stopped: %w", transport.ctx.Err())
		return
	}

	id = exporter.ConnID(transport.lastID.Add(1))
	c := &conn{
		id:      id,
		address: net.JoinHostPort(addr, strconv.Itoa(int(port))),
		wake:    make(chan struct{}, 1),
	}
	c.ctx, c.cancel = context.WithCancel(transport.ctx)
	c.outbox.Init(transport.config.OutboxDepth)

	transport.mutex.Lock()
	transport.conns[id] = c
	transport.mutex.Unlock()

	transport.wg.Add(1)
	go transport.run(c)
	return
}

// Queues a frame for the connection's writer. Only the loop goroutine may call Send.
func (transport *Transport) Send(id exporter.ConnID, frame []byte) (err error) {
	c := transport.lookup(id)
	if c == nil {
		err = fmt.Errorf("%w: %d", ErrUnknownConnection, id)
		return
	}
	if c.connected.Load() == 0 || c.closed.Load() != 0 {
		err = fmt.Errorf("%w: %d", ErrNotConnected, id)
		return
	}

	// pool memory is reused after acknowledgment
	owned := make([]byte, len(frame))
	copy(owned, frame)

	err = c.outbox.Enqueue(&owned)
	if err == iox.ErrWouldBlock {
		transport.Metrics.OutboxFull.Add(1)
		err = fmt.Errorf("connection %d: %w", id, ErrOutboxFull)
		return
	}
	if err != nil {
		err = fmt.Errorf("connection %d: %w", id, err)
		return
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return
}

// Closes a connection without reporting OnDisconnect for it
func (transport *Transport) Close(id exporter.ConnID) (err error) {
	transport.mutex.Lock()
	c, ok := transport.conns[id]
	delete(transport.conns, id)
	transport.mutex.Unlock()
	if !ok {
		err = fmt.Errorf("%w: %d", ErrUnknownConnection, id)
		return
	}
	c.shutdown()
	return
}

// Closes every connection and waits for the workers to exit
func (transport *Transport) Shutdown() {
	transport.mutex.Lock()
	open := make([]*conn, 0, len(transport.conns))
	for id, c := range transport.conns {
		open = append(open, c)
		delete(transport.conns, id)
	}
	transport.mutex.Unlock()

	for _, c := range open {
		c.shutdown()
	}
	transport.wg.Wait()
}

// Number of connections dialing or established
func (transport *Transport) Open() (count int) {
	transport.mutex.Lock()
	count = len(transport.conns)
	transport.mutex.Unlock()
	return
}

func (transport *Transport) lookup(id exporter.ConnID) (c *conn) {
	transport.mutex.Lock()
	c = transport.conns[id]
	transport.mutex.Unlock()
	return
}

// Drops the connection from the table, reporting whether it was still present
func (transport *Transport) forget(c *conn) (present bool) {
	transport.mutex.Lock()
	current, ok := transport.conns[c.id]
	if ok && current == c {
		delete(transport.conns, c.id)
		present = true
	}
	transport.mutex.Unlock()
	return
}

func (transport *Transport) dialTCP(ctx context.Context, address string) (netConn net.Conn, err error) {
	dialer := net.Dialer{
		Timeout: transport.config.DialTimeout,
		Control: transport.socketOptions,
	}
	if !transport.config.KeepAlive {
		dialer.KeepAlive = -1
	}
	netConn, err = dialer.DialContext(ctx, "tcp", address)
	return
}

// Using x/sys/unix package for the socket options
func (transport *Transport) socketOptions(network, address string, raw syscall.RawConn) (err error) {
	controlErr := raw.Control(func(fd uintptr) {
		if !transport.config.DisableNoDelay {
			err = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			if err != nil {
				return
			}
		}
		if transport.config.KeepAlive {
			err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
			if err != nil {
				return
			}
		}
		if transport.config.SendBuffer > 0 {
			err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, transport.config.SendBuffer)
		}
	})
	if controlErr != nil {
		err = controlErr
	}
	if err != nil {
		err = fmt.Errorf("failed to set socket options for %s: %w", address, err)
	}
	return
}

func (c *conn) shutdown() {
	if c.closed.Add(1) != 1 {
		return
	}
	c.cancel()
}
