// Central logging system. Buffers messages and writes to configured outputs
package logctx

import (
	"context"
	"fmt"
	"ipdrexporter/internal/global"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger Constructor.
// Embeds logger in returned context using provided context as base.
func New(baseCtx context.Context, id string, logLevel int, done <-chan struct{}) (ctxLogger context.Context) {
	ctxLogger = WithLogger(baseCtx, NewLogger(id, logLevel, done))
	return
}

// Creates a detached logger (see global.Verbosity* for levels)
func NewLogger(id string, logLevel int, done <-chan struct{}) (logger *Logger) {
	logger = &Logger{
		ID:         id,
		CreatedAt:  time.Now(),
		queue:      make([]Event, 0),
		Done:       done,
		PrintLevel: logLevel,
		wg:         &sync.WaitGroup{},
	}
	logger.cond = sync.NewCond(&logger.mutex)
	return
}

// Attach the logger to context
func WithLogger(ctx context.Context, logger *Logger) (ctxLogger context.Context) {
	ctxLogger = context.WithValue(ctx, global.LoggerKey, logger)
	return
}

// Change the loggers level
func SetLogLevel(ctx context.Context, newLevel int) {
	logger := GetLogger(ctx)
	if logger != nil {
		logger.mutex.Lock()
		defer logger.mutex.Unlock()
		logger.PrintLevel = newLevel
	}
}

// Extracts Logger from context or returns nil
func GetLogger(ctx context.Context) (logger *Logger) {
	if ctx == nil {
		return
	}
	logger, _ = ctx.Value(global.LoggerKey).(*Logger)
	return
}

// Hold main thread exit until logger is finished its work
func (logger *Logger) Wait() {
	logger.wg.Wait()
}

// Wake signals/broadcasts to any goroutines waiting on the condition variable
func (logger *Logger) Wake() {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.cond.Broadcast()
}

// Number of events not yet consumed by a watcher
func (logger *Logger) Pending() (count int) {
	logger.mutex.Lock()
	count = len(logger.queue)
	logger.mutex.Unlock()
	return
}

// Entry for logging events
func LogEvent(ctx context.Context, eventLevel int, severity string, message string, vars ...any) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}

	msg := message
	if len(vars) > 0 && strings.Contains(message, "%") {
		msg = fmt.Sprintf(message, vars...)
	}
	logger.log(eventLevel, severity, GetTagList(ctx), msg, nil)
}

// Entry for logging events carrying structured context.
// Fields are rendered sorted by key so output is stable.
func LogFields(ctx context.Context, eventLevel int, severity string, message string, fields map[string]any) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}

	var list []Field
	if len(fields) > 0 {
		list = make([]Field, 0, len(fields))
		for key, value := range fields {
			list = append(list, Field{Key: key, Value: value})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	}
	logger.log(eventLevel, severity, GetTagList(ctx), message, list)
}

// Queues event if the level allows it
func (logger *Logger) log(eventLevel int, eventSeverity string, tags []string, fullMessage string, fields []Field) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	if eventLevel > logger.PrintLevel && eventSeverity != global.ErrorLog {
		return
	}

	logger.queue = append(logger.queue, Event{
		Timestamp: time.Now(),
		Tags:      tags,
		Severity:  eventSeverity,
		Message:   fullMessage,
		Fields:    fields,
	})
	logger.cond.Signal() // Notify watcher that new event is available
}
