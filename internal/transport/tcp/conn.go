package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/pkg/protocol"
	"net"
	"runtime/debug"

	"code.hybscloud.com/iox"
	"github.com/bitdabbler/backoff"
)

// Connection worker: dial, announce, then read until the link fails
func (transport *Transport) run(c *conn) {
	defer transport.wg.Done()

	ctx := logctx.AppendCtxTag(c.ctx, global.NSConn)
	defer func() {
		if fatalError := recover(); fatalError != nil {
			stack := debug.Stack()
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in connection %d worker: %v\n%s", c.id, fatalError, stack)
			transport.report(c, fmt.Errorf("connection worker panic: %v", fatalError))
		}
	}()

	netConn, err := transport.dialWithBackoff(ctx, c)
	if err != nil {
		transport.report(c, err)
		return
	}
	defer netConn.Close()
	stop := context.AfterFunc(c.ctx, func() { _ = netConn.Close() })
	defer stop()

	c.connected.Add(1)
	handler := transport.handler
	if !transport.post(ctx, func() { handler.OnConnect(c.id) }) {
		return
	}

	var writeErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeErr = transport.write(ctx, c, netConn)
	}()

	err = transport.read(ctx, c, netConn)
	c.cancel()
	<-writerDone
	if writeErr != nil {
		err = writeErr
	}
	transport.report(c, err)
}

// Retries the dial with exponential backoff up to the configured attempts
func (transport *Transport) dialWithBackoff(ctx context.Context, c *conn) (netConn net.Conn, err error) {
	b, err := backoff.New(
		backoff.WithInitialDelay(0),
		backoff.WithExponentialLimit(transport.config.MaxDialDelay),
	)
	if err != nil {
		return
	}

	for attempt := 1; ; attempt++ {
		transport.Metrics.Dials.Add(1)
		netConn, err = transport.dial(c.ctx, c.address)
		if err == nil {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
				"connection %d established to %s\n", c.id, c.address)
			return
		}
		transport.Metrics.DialFailures.Add(1)
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
			"connection %d: dial attempt %d to %s failed: %v\n", c.id, attempt, c.address, err)

		if attempt >= transport.config.DialAttempts {
			err = fmt.Errorf("failed to connect to %s after %d attempts: %w", c.address, attempt, err)
			return
		}
		if c.ctx.Err() != nil {
			err = c.ctx.Err()
			return
		}
		b.Sleep()
		if c.ctx.Err() != nil {
			err = c.ctx.Err()
			return
		}
	}
}

// Drains the outbox onto the socket
func (transport *Transport) write(ctx context.Context, c *conn, netConn net.Conn) (err error) {
	for {
		frame, dequeueErr := c.outbox.Dequeue()
		if dequeueErr == iox.ErrWouldBlock {
			select {
			case <-c.wake:
				continue
			case <-c.ctx.Done():
				return
			}
		}
		if dequeueErr != nil {
			err = fmt.Errorf("outbound queue: %w", dequeueErr)
			c.cancel()
			return
		}

		_, err = netConn.Write(frame)
		if err != nil {
			if c.ctx.Err() != nil {
				err = nil
				return
			}
			transport.Metrics.WriteFailures.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"connection %d: failed to send %s: %v\n", c.id, protocol.MessageName(protocol.MessageID(frame)), err)
			c.cancel()
			return
		}
		transport.Metrics.FramesSent.Add(1)
		transport.Metrics.BytesSent.Add(uint64(len(frame)))
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
			"connection %d: sent %s (size %d)\n", c.id, protocol.MessageName(protocol.MessageID(frame)), len(frame))
	}
}

// Splits the byte stream into frames and hands each to the loop
func (transport *Transport) read(ctx context.Context, c *conn, netConn net.Conn) (err error) {
	handler := transport.handler
	buf := make([]byte, transport.config.ReadBuffer)
	filled := 0

	for {
		n, readErr := netConn.Read(buf[filled:])
		filled += n

		stream := buf[:filled]
		need := 0
		for {
			var frame []byte
			frame, stream, need, err = protocol.NextFrame(stream)
			if err != nil {
				err = fmt.Errorf("connection %d: %w", c.id, err)
				return
			}
			if frame == nil {
				break
			}

			owned := make([]byte, len(frame))
			copy(owned, frame)
			transport.Metrics.FramesRecv.Add(1)
			transport.Metrics.BytesRecv.Add(uint64(len(owned)))
			logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
				"connection %d: received %s (size %d)\n", c.id, protocol.MessageName(protocol.MessageID(owned)), len(owned))

			if !transport.post(ctx, func() { handler.OnData(c.id, owned) }) {
				err = fmt.Errorf("connection %d: event loop stopped", c.id)
				return
			}
		}

		// keep the partial frame at the front, growing for large frames
		filled = copy(buf, stream)
		if filled+need > len(buf) {
			grown := make([]byte, filled+need)
			copy(grown, buf[:filled])
			buf = grown
		}

		if readErr != nil {
			err = readErr
			if errors.Is(readErr, io.EOF) {
				err = fmt.Errorf("connection %d closed by peer: %w", c.id, readErr)
			}
			return
		}
	}
}

// Reports a link failure unless the connection was closed locally
func (transport *Transport) report(c *conn, cause error) {
	if c.closed.Load() != 0 {
		return
	}
	if !transport.forget(c) {
		return
	}
	c.closed.Add(1)
	c.cancel()

	logctx.LogEvent(transport.ctx, global.VerbosityProgress, global.WarnLog,
		"connection %d to %s lost: %v\n", c.id, c.address, cause)
	handler := transport.handler
	transport.post(transport.ctx, func() { handler.OnDisconnect(c.id, cause) })
}

func (transport *Transport) post(ctx context.Context, fn func()) (ok bool) {
	err := transport.poster.PostWait(transport.ctx, fn)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
			"failed to hand event to loop: %v\n", err)
		return
	}
	ok = true
	return
}
