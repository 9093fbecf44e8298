package logctx

import (
	"context"
	"ipdrexporter/internal/global"
	"strings"
	"testing"
)

func TestLogEvent(t *testing.T) {
	tests := []struct {
		name          string
		logLevel      int
		eventLevel    int
		severity      string
		message       string
		vars          []any
		expectEvents  int
		expectMessage string
	}{
		{
			name:          "event level within print level is logged",
			logLevel:      2,
			eventLevel:    1,
			severity:      global.InfoLog,
			message:       "hello world",
			expectEvents:  1,
			expectMessage: "hello world",
		},
		{
			name:         "event level above print level is dropped",
			logLevel:     1,
			eventLevel:   3,
			severity:     global.InfoLog,
			message:      "should not appear",
			expectEvents: 0,
		},
		{
			name:          "error severity bypasses level filtering",
			logLevel:      0,
			eventLevel:    5,
			severity:      global.ErrorLog,
			message:       "fatal error",
			expectEvents:  1,
			expectMessage: "fatal error",
		},
		{
			name:          "formatted message with vars",
			logLevel:      3,
			eventLevel:    2,
			severity:      global.WarnLog,
			message:       "value=%d",
			vars:          []any{42},
			expectEvents:  1,
			expectMessage: "value=42",
		},
		{
			name:          "percent without vars is kept",
			logLevel:      3,
			eventLevel:    2,
			severity:      global.InfoLog,
			message:       "100% done",
			expectEvents:  1,
			expectMessage: "100% done",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			defer close(done)

			ctx := New(context.Background(), global.NSTest, tt.logLevel, done)
			logger := GetLogger(ctx)
			if logger == nil {
				t.Fatalf("expected logger in context")
			}

			LogEvent(ctx, tt.eventLevel, tt.severity, tt.message, tt.vars...)

			if got := logger.Pending(); got != tt.expectEvents {
				t.Fatalf("expected %d events, got %d", tt.expectEvents, got)
			}
			if tt.expectEvents == 0 {
				return
			}
			event := logger.queue[0]
			if event.Message != tt.expectMessage {
				t.Fatalf("expected message %q, got %q", tt.expectMessage, event.Message)
			}
			if event.Severity != tt.severity {
				t.Fatalf("expected severity %q, got %q", tt.severity, event.Severity)
			}
		})
	}
}

func TestLogFields(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	ctx := New(context.Background(), global.NSTest, global.VerbosityStandard, done)
	ctx = AppendCtxTag(ctx, global.NSExport, global.NSSession)

	LogFields(ctx, global.VerbosityStandard, global.InfoLog, "peer selected\n",
		map[string]any{"session": 3, "peer": "collector-a"})

	lines := GetLogger(ctx).GetFormattedLogLines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 formatted line, got %d", len(lines))
	}
	line := lines[0]
	if !strings.Contains(line, "[Exporter/Session] [Info] peer selected peer=collector-a session=3\n") {
		t.Fatalf("unexpected formatted line %q", line)
	}
}

func TestNoLoggerIsSilent(t *testing.T) {
	// Must not panic without a logger attached
	LogEvent(context.Background(), global.VerbosityStandard, global.InfoLog, "dropped %d", 1)
	LogFields(context.Background(), global.VerbosityStandard, global.InfoLog, "dropped", nil)
}

func TestSetLogLevel(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	ctx := New(context.Background(), global.NSTest, global.VerbosityNone, done)
	LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "before")
	SetLogLevel(ctx, global.VerbosityStandard)
	LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "after")

	logger := GetLogger(ctx)
	if logger.Pending() != 1 || logger.queue[0].Message != "after" {
		t.Fatalf("expected only the post-change event, got %+v", logger.queue)
	}
}
