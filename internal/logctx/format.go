package logctx

import (
	"fmt"
	"strings"
	"time"
)

// Stringify full event
func (event Event) Format() (text string) {
	// Only print parts that are present
	var parts []string
	if !event.Timestamp.IsZero() {
		parts = append(parts, "["+padTimestamp(event.Timestamp)+"]")
	}
	if len(event.Tags) > 0 {
		parts = append(parts, "["+strings.Join(event.Tags, "/")+"]")
	}
	if event.Severity != "" {
		parts = append(parts, "["+event.Severity+"]")
	}

	msg := event.Message
	if len(event.Fields) > 0 {
		// Fields go before the caller supplied newline
		trimmed := strings.TrimSuffix(msg, "\n")
		suffix := msg[len(trimmed):]

		pairs := make([]string, 0, len(event.Fields))
		for _, field := range event.Fields {
			pairs = append(pairs, fmt.Sprintf("%s=%v", field.Key, field.Value))
		}
		if trimmed != "" {
			trimmed += " "
		}
		msg = trimmed + strings.Join(pairs, " ") + suffix
	}
	if msg != "" {
		parts = append(parts, msg)
	}

	text = strings.Join(parts, " ")
	// No newline, message creator determines newlines
	return
}

// Ensures fixed length strings for timestamps
func padTimestamp(timestamp time.Time) (formatted string) {
	formatted = timestamp.Format(time.RFC3339Nano)

	dot := strings.IndexByte(formatted, '.')
	if dot < 0 {
		return
	}
	zone := strings.IndexAny(formatted[dot:], "Z+-")
	if zone < 0 {
		return
	}
	zone += dot

	// Pad the fractional part to nanosecond precision
	fraction := formatted[dot+1 : zone]
	for len(fraction) < 9 {
		fraction += "0"
	}
	formatted = formatted[:dot+1] + fraction + formatted[zone:]
	return
}
