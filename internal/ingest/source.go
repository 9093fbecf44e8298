package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/internal/template"
	"os"
	"runtime/debug"

	"golang.org/x/term"
)

const readBufferSize int = 64 << 10

// Creates a source reading lines from input until EOF
func NewSource(namespace []string, input io.Reader, catalog Catalog, submit SubmitFunc) (source *Source) {
	source = &Source{
		Namespace: append(namespace, global.NSIngest),
		input:     input,
		catalog:   catalog,
		submit:    submit,
		Metrics:   &MetricStorage{},
	}
	return
}

// Opens path as a record source, "-" meaning stdin.
// With follow set the file is watched for appended lines instead of ending at EOF.
func Open(ctx context.Context, namespace []string, path string, follow bool, catalog Catalog, submit SubmitFunc) (source *Source, err error) {
	if path == "-" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
				"reading records from an interactive terminal, one JSON object per line\n")
		}
		source = NewSource(namespace, os.Stdin, catalog, submit)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open record source: %w", err)
		return
	}
	source = NewSource(namespace, file, catalog, submit)
	if follow {
		source.path = path
	}
	return
}

// Reads and submits lines until EOF (or cancellation when following).
// Malformed lines are counted and skipped. A failed submit ends the run.
func (source *Source) Run(ctx context.Context) (err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSIngest)
	if closer, ok := source.input.(io.Closer); ok && source.input != os.Stdin {
		// unblocks a pending read on cancellation
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer func() {
			if stop() {
				closer.Close()
			}
		}()
	}

	var changed chan struct{}
	if source.path != "" {
		changed = make(chan struct{}, 1)
		go watch(ctx, source.path, changed)
	}

	reader := bufio.NewReaderSize(source.input, readBufferSize)
	var pending []byte
	for {
		chunk, readErr := reader.ReadBytes('\n')
		pending = append(pending, chunk...)

		if readErr == nil {
			err = source.handle(ctx, pending)
			if err != nil {
				return
			}
			pending = pending[:0]
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if readErr != io.EOF {
			err = fmt.Errorf("failed reading record source: %w", readErr)
			return
		}

		if changed == nil {
			// last line without trailing newline
			err = source.handle(ctx, pending)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func (source *Source) handle(ctx context.Context, raw []byte) (err error) {
	text := bytes.TrimSpace(raw)
	if len(text) == 0 {
		return
	}
	source.Metrics.LinesRead.Add(1)

	defer func() {
		if fatalError := recover(); fatalError != nil {
			stack := debug.Stack()
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic handling record line: %v\n%s", fatalError, stack)
			source.Metrics.Rejected.Add(1)
		}
	}()

	var line Line
	decoder := json.NewDecoder(bytes.NewReader(text))
	decoder.UseNumber()
	parseErr := decoder.Decode(&line)
	if parseErr != nil {
		source.reject(ctx, "invalid JSON: %v\n", parseErr)
		return
	}

	values, convertErr := source.catalog.Convert(line)
	if convertErr != nil {
		source.reject(ctx, "session %d template %d: %v\n", line.Session, line.Template, convertErr)
		return
	}

	err = source.submit(ctx, line.Session, line.Template, template.Record{Ctx: values})
	if err != nil {
		err = fmt.Errorf("failed to submit record: %w", err)
		return
	}
	source.Metrics.Submitted.Add(1)
	logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
		"queued record for session %d template %d\n", line.Session, line.Template)
	return
}

func (source *Source) reject(ctx context.Context, format string, args ...any) {
	source.Metrics.Rejected.Add(1)
	logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog, "rejected record line: "+format, args...)
}
