// Fire and forget exporter event reporting
package events

import (
	"context"
	"errors"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"sort"
)

// Event messages emitted by the exporter
const (
	PeerSelected    string = "peer selected"
	RecordLost      string = "record lost"
	QueueEmptied    string = "queue emptied"
	AnomalyDetected string = "anomaly detected"
	ConnectionState string = "connection state changed"
)

// Receives exporter events. Emit must not block.
type Sink interface {
	Emit(severity string, message string, fields map[string]any)
}

// Drops every event
type Discard struct{}

func (Discard) Emit(string, string, map[string]any) {}

// Writes events as structured log lines
type LogSink struct {
	ctx context.Context
}

// Creates sink logging through the logger carried in ctx
func NewLogSink(ctx context.Context) (sink *LogSink) {
	ctx = logctx.AppendCtxTag(ctx, global.NSEvents)
	sink = &LogSink{ctx: ctx}
	return
}

func (sink *LogSink) Emit(severity string, message string, fields map[string]any) {
	level := global.VerbosityStandard
	if severity == global.InfoLog {
		level = global.VerbosityProgress
	}
	logctx.LogFields(sink.ctx, level, severity, message+"\n", fields)
}

// Sends each event to every sink in order
type Fanout []Sink

func (fan Fanout) Emit(severity string, message string, fields map[string]any) {
	for _, sink := range fan {
		if sink == nil {
			continue
		}
		sink.Emit(severity, message, fields)
	}
}

// Closes every sink in the fanout that supports closing
func (fan Fanout) Close() (err error) {
	for _, sink := range fan {
		closer, ok := sink.(interface{ Close() error })
		if !ok {
			continue
		}
		err = errors.Join(err, closer.Close())
	}
	return
}

// Captures events in memory (tests and query endpoint)
type Recorder struct {
	Events []Recorded
}

type Recorded struct {
	Severity string
	Message  string
	Fields   map[string]any
}

func (rec *Recorder) Emit(severity string, message string, fields map[string]any) {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	rec.Events = append(rec.Events, Recorded{Severity: severity, Message: message, Fields: copied})
}

// Recorded events with the given message
func (rec *Recorder) Find(message string) (found []Recorded) {
	for _, event := range rec.Events {
		if event.Message == message {
			found = append(found, event)
		}
	}
	return
}

// Sorted field names, for stable encodings
func fieldKeys(fields map[string]any) (keys []string) {
	keys = make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return
}
