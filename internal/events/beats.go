package events

import (
	"context"
	"fmt"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bitdabbler/backoff"
	lumberjack "github.com/elastic/go-lumber/client/v2"
)

const (
	beatsQueueDepth int           = 256
	beatsTimeout    time.Duration = 3 * time.Second
)

// Batch sender used by the beats sink
type beatsClient interface {
	Send(data []interface{}) (int, error)
	Close() error
}

// Ships events to a beats (lumberjack v2) endpoint.
// Emit enqueues, a single worker sends. Events are dropped when the queue is full.
type BeatsSink struct {
	ctx      context.Context
	endpoint string
	dial     func(endpoint string) (beatsClient, error)
	client   beatsClient
	queue    chan map[string]interface{}
	wg       sync.WaitGroup
	mutex    sync.Mutex
	closed   bool
	dropped  uint64
}

// Creates new beats sink. Returns nil nil if no endpoint.
// Connects eagerly so configuration errors surface at startup.
func NewBeatsSink(ctx context.Context, endpoint string) (sink *BeatsSink, err error) {
	if endpoint == "" {
		return
	}
	sink, err = newBeatsSink(ctx, endpoint, dialBeats)
	return
}

func newBeatsSink(ctx context.Context, endpoint string, dial func(string) (beatsClient, error)) (sink *BeatsSink, err error) {
	client, err := dial(endpoint)
	if err != nil {
		err = fmt.Errorf("failed connection to beats server: %w", err)
		return
	}

	sink = &BeatsSink{
		ctx:      logctx.AppendCtxTag(ctx, global.NSEvents),
		endpoint: endpoint,
		dial:     dial,
		client:   client,
		queue:    make(chan map[string]interface{}, beatsQueueDepth),
	}
	sink.wg.Add(1)
	go sink.run()
	return
}

func dialBeats(endpoint string) (client beatsClient, err error) {
	compression := lumberjack.CompressionLevel(0)
	timeout := lumberjack.Timeout(beatsTimeout)

	client, err = lumberjack.SyncDial(endpoint, compression, timeout)
	return
}

func (sink *BeatsSink) Emit(severity string, message string, fields map[string]any) {
	if sink == nil {
		return
	}

	event := map[string]interface{}{
		"@timestamp": time.Now().UTC(),
		"message":    message,
		"log": map[string]interface{}{
			"level": severity,
		},
		"agent": map[string]interface{}{
			"program": global.ProgBaseName,
			"version": global.ProgVersion,
			"type":    "ipdr-exporter",
			"pid":     os.Getpid(),
		},
	}
	if len(fields) > 0 {
		labels := make(map[string]interface{}, len(fields))
		for _, key := range fieldKeys(fields) {
			labels[key] = fields[key]
		}
		event["ipdr"] = labels
	}

	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.closed {
		return
	}
	select {
	case sink.queue <- event:
	default:
		sink.dropped++
	}
}

// Number of events dropped because the queue was full or delivery failed
func (sink *BeatsSink) Dropped() (count uint64) {
	sink.mutex.Lock()
	count = sink.dropped
	sink.mutex.Unlock()
	return
}

// Send worker. Reconnects with backoff after a failed send, retrying the event once.
// Runs until the queue is closed and empty.
func (sink *BeatsSink) run() {
	defer sink.wg.Done()
	defer func() {
		if fatalError := recover(); fatalError != nil {
			stack := debug.Stack()
			logctx.LogEvent(sink.ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in beats sink worker: %v\n%s", fatalError, stack)
		}
	}()

	for event := range sink.queue {
		// Redial already failed during the final drain
		if sink.client == nil {
			sink.drop()
			continue
		}

		batch := []interface{}{event}
		_, err := sink.client.Send(batch)
		if err == nil {
			continue
		}
		logctx.LogEvent(sink.ctx, global.VerbosityStandard, global.WarnLog,
			"failed sending event to beats server %s: %v\n", sink.endpoint, err)

		if !sink.reconnect() {
			sink.drop()
			continue
		}
		_, err = sink.client.Send(batch)
		if err != nil {
			sink.drop()
			logctx.LogEvent(sink.ctx, global.VerbosityStandard, global.WarnLog,
				"dropped event after reconnect to %s: %v\n", sink.endpoint, err)
		}
	}
}

func (sink *BeatsSink) drop() {
	sink.mutex.Lock()
	sink.dropped++
	sink.mutex.Unlock()
}

// Redials until success. Once the sink is closed a failed attempt gives up and
// leaves the client nil.
func (sink *BeatsSink) reconnect() (ok bool) {
	if sink.client != nil {
		_ = sink.client.Close()
		sink.client = nil
	}

	b, err := backoff.New(
		backoff.WithInitialDelay(0),
		backoff.WithExponentialLimit(time.Second*20),
	)
	if err != nil {
		return
	}

	for attempt := 1; ; attempt++ {
		client, err := sink.dial(sink.endpoint)
		if err == nil {
			sink.client = client
			ok = true
			return
		}
		logctx.LogEvent(sink.ctx, global.VerbosityProgress, global.WarnLog,
			"beats reconnect attempt %d failed: %v\n", attempt, err)

		sink.mutex.Lock()
		closed := sink.closed
		sink.mutex.Unlock()
		if closed {
			return
		}
		b.Sleep()
	}
}

// Drains queued events and closes the connection
func (sink *BeatsSink) Close() (err error) {
	if sink == nil {
		return
	}
	sink.mutex.Lock()
	if sink.closed {
		sink.mutex.Unlock()
		return
	}
	sink.closed = true
	close(sink.queue)
	sink.mutex.Unlock()

	sink.wg.Wait()
	if sink.client != nil {
		err = sink.client.Close()
	}
	return
}
