package events

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Writes events as msgpack arrays [tag, unix time, record] (fluent forward message mode)
type StreamSink struct {
	tag     string
	mutex   sync.Mutex
	encoder *msgpack.Encoder
	closer  io.Closer
	errors  uint64
}

// Creates sink writing to w. Closes w on Close if it is an io.Closer.
func NewStreamSink(w io.Writer, tag string) (sink *StreamSink) {
	sink = &StreamSink{
		tag:     tag,
		encoder: msgpack.NewEncoder(w),
	}
	sink.encoder.SetSortMapKeys(true)
	if closer, ok := w.(io.Closer); ok {
		sink.closer = closer
	}
	return
}

func (sink *StreamSink) Emit(severity string, message string, fields map[string]any) {
	record := make(map[string]interface{}, len(fields)+2)
	for key, value := range fields {
		record[key] = value
	}
	record["severity"] = severity
	record["message"] = message

	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	err := sink.encoder.Encode([]interface{}{sink.tag, time.Now().Unix(), record})
	if err != nil {
		sink.errors++
	}
}

// Number of events that failed to encode or write
func (sink *StreamSink) Errors() (count uint64) {
	sink.mutex.Lock()
	count = sink.errors
	sink.mutex.Unlock()
	return
}

func (sink *StreamSink) Close() (err error) {
	if sink.closer == nil {
		return
	}
	err = sink.closer.Close()
	if err != nil {
		err = fmt.Errorf("failed closing event stream: %w", err)
	}
	return
}
