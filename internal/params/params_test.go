package params

import (
	"testing"
	"time"
)

func TestTypedLookups(t *testing.T) {
	table := NewTable(map[string]string{
		KeyChunkSize:         "131072",
		KeyMemoryCap:         "1048576",
		KeyKeepAliveInterval: "15",
		KeyResponseTimeout:   "1500ms",
		KeyWindowSize:        "not-a-number",
		"flag":               " true ",
		"blank":              "   ",
	})

	tests := []struct {
		name   string
		got    any
		expect any
	}{
		{"int present", Int(table, KeyChunkSize, 1), 131072},
		{"int malformed falls back", Int(table, KeyWindowSize, 64), 64},
		{"int missing falls back", Int(table, KeyInitialChunks, 4), 4},
		{"uint64", Uint64(table, KeyMemoryCap, 0), uint64(1048576)},
		{"duration seconds", Duration(table, KeyKeepAliveInterval, time.Minute), 15 * time.Second},
		{"duration string", Duration(table, KeyResponseTimeout, time.Minute), 1500 * time.Millisecond},
		{"duration missing", Duration(table, KeyReconnectInterval, 3*time.Second), 3 * time.Second},
		{"bool trims space", Bool(table, "flag", false), true},
		{"blank is missing", String(table, "blank", "fallback"), "fallback"},
		{"nil source", Int(nil, KeyChunkSize, 7), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expect {
				t.Fatalf("expected %v (%T), got %v (%T)", tt.expect, tt.expect, tt.got, tt.got)
			}
		})
	}
}

func TestTableReplaceCopies(t *testing.T) {
	values := map[string]string{"a": "1"}
	table := NewTable(values)
	values["a"] = "2"

	if got := String(table, "a", ""); got != "1" {
		t.Fatalf("table must hold its own copy, got %q", got)
	}

	table.Replace(map[string]string{"b": "3"})
	if _, ok := table.Lookup("a"); ok || table.Len() != 1 {
		t.Fatalf("replace must drop old keys")
	}
	table.Set("c", "4")
	if Int(table, "c", 0) != 4 {
		t.Fatalf("set value not visible")
	}
}
