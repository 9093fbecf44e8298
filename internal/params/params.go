// String keyed parameter lookup with typed default fallback
package params

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Parameter names read by pool, queue and session setup
const (
	KeyChunkSize           string = "pool.chunkSize"
	KeyInitialChunks       string = "pool.initialChunks"
	KeyGrowthFactor        string = "pool.growthFactor"
	KeyMinMessage          string = "pool.minMessage"
	KeyMemoryCap           string = "pool.memoryCap"
	KeyMemoryCapDivisor    string = "pool.memoryCapDivisor"
	KeyKeepAliveInterval   string = "session.keepAliveInterval"
	KeyResponseTimeout     string = "session.responseTimeout"
	KeyTemplateAckTimeout  string = "session.templateAckTimeout"
	KeyReconnectInterval   string = "session.reconnectInterval"
	KeyWindowSize          string = "session.windowSize"
	KeyAckTimeInterval     string = "session.ackTimeInterval"
	KeyAckSequenceInterval string = "session.ackSequenceInterval"
)

// Read-only parameter lookup
type Source interface {
	Lookup(key string) (value string, ok bool)
}

// Parameter map, safe for concurrent lookup and replacement
type Table struct {
	mutex  sync.RWMutex
	values map[string]string
}

// Creates new table holding a copy of values
func NewTable(values map[string]string) (table *Table) {
	table = &Table{}
	table.Replace(values)
	return
}

func (table *Table) Lookup(key string) (value string, ok bool) {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	value, ok = table.values[key]
	return
}

// Swaps in a new set of values (used on reload)
func (table *Table) Replace(values map[string]string) {
	copied := make(map[string]string, len(values))
	for key, value := range values {
		copied[key] = value
	}
	table.mutex.Lock()
	table.values = copied
	table.mutex.Unlock()
}

// Sets a single value
func (table *Table) Set(key, value string) {
	table.mutex.Lock()
	if table.values == nil {
		table.values = make(map[string]string)
	}
	table.values[key] = value
	table.mutex.Unlock()
}

// Number of parameters held
func (table *Table) Len() (count int) {
	table.mutex.RLock()
	count = len(table.values)
	table.mutex.RUnlock()
	return
}

func lookup(source Source, key string) (value string, ok bool) {
	if source == nil {
		return
	}
	value, ok = source.Lookup(key)
	value = strings.TrimSpace(value)
	ok = ok && value != ""
	return
}

// String value or fallback
func String(source Source, key string, fallback string) (value string) {
	value, ok := lookup(source, key)
	if !ok {
		value = fallback
	}
	return
}

// Integer value or fallback when missing or malformed
func Int(source Source, key string, fallback int) (value int) {
	value = fallback
	raw, ok := lookup(source, key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	value = parsed
	return
}

// Unsigned value or fallback when missing or malformed
func Uint64(source Source, key string, fallback uint64) (value uint64) {
	value = fallback
	raw, ok := lookup(source, key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return
	}
	value = parsed
	return
}

// Duration value or fallback. Plain integers are taken as seconds.
func Duration(source Source, key string, fallback time.Duration) (value time.Duration) {
	value = fallback
	raw, ok := lookup(source, key)
	if !ok {
		return
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		value = time.Duration(seconds) * time.Second
		return
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return
	}
	value = parsed
	return
}

// Boolean value or fallback
func Bool(source Source, key string, fallback bool) (value bool) {
	value = fallback
	raw, ok := lookup(source, key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return
	}
	value = parsed
	return
}
