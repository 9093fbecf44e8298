package logctx

import (
	"fmt"
	"io"
	"ipdrexporter/internal/global"
	"sort"
	"strings"
	"time"
)

const (
	dedupWindow      time.Duration = 5 * time.Second
	dedupMinRepeats  int           = 10
	suppressCooldown time.Duration = 1 * time.Minute
)

// Starts a go routine that reads events and writes formatted output to io.Writer.
// Stops when logger.Done is closed and the queue is drained.
func StartWatcher(logger *Logger, output io.Writer) {
	logger.wg.Add(1)

	go func() {
		defer logger.wg.Done()

		var dedup dedupState
		for {
			event, ok := logger.next()
			if !ok {
				return
			}

			now := time.Now()

			// Highly repetitive messages inside the window are collapsed into a periodic summary
			if event.Message != "" &&
				event.Message == dedup.lastMsg &&
				now.Sub(event.Timestamp) <= dedupWindow {

				dedup.repeatCount++
				if dedup.repeatCount >= dedupMinRepeats && now.Sub(dedup.lastSuppressTime) >= suppressCooldown {
					fmt.Fprintf(output,
						"[%s] [%s] [%s] Suppressed %d repeated messages: %s\n",
						padTimestamp(event.Timestamp),
						strings.Join(event.Tags, "/"),
						global.InfoLog,
						dedup.repeatCount,
						strings.TrimSuffix(dedup.lastMsg, "\n"))

					dedup.lastSuppressTime = now
					dedup.repeatCount = 0
				}
				continue
			}
			dedup.lastMsg = event.Message
			dedup.repeatCount = 1

			fmt.Fprintf(output, "%s", event.Format())
		}
	}()
}

// Blocks until an event is available or the logger is done with an empty queue
func (logger *Logger) next() (event Event, ok bool) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	for len(logger.queue) == 0 {
		select {
		case <-logger.Done:
			return
		default:
			logger.cond.Wait()
		}
	}

	event = logger.queue[0]
	logger.queue = logger.queue[1:]
	ok = true
	return
}

// Returns queued events formatted oldest first without consuming them
func (logger *Logger) GetFormattedLogLines() (formatted []string) {
	// Copy under lock to avoid holding mutex while sorting/formatting
	logger.mutex.Lock()
	events := make([]Event, len(logger.queue))
	copy(events, logger.queue)
	logger.mutex.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].Timestamp, events[j].Timestamp
		// Zero timestamps sort last
		if ti.IsZero() || tj.IsZero() {
			return !ti.IsZero() && tj.IsZero()
		}
		return ti.Before(tj)
	})

	formatted = make([]string, 0, len(events))
	for _, event := range events {
		line := event.Format()
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		formatted = append(formatted, line)
	}
	return
}
