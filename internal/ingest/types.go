// JSON lines record source feeding exporter sessions
package ingest

import (
	"context"
	"errors"
	"io"
	"ipdrexporter/internal/template"
	"sync/atomic"
)

var (
	ErrUnknownSession  = errors.New("no templates for session")
	ErrUnknownTemplate = errors.New("unknown template")
	ErrBadValue        = errors.New("value does not fit field type")
)

// Template as declared in the daemon configuration
type TemplateDef struct {
	ID     uint16     `json:"id"`
	Schema string     `json:"schema"`
	Type   string     `json:"type"`
	Fields []FieldDef `json:"fields"`
}

type FieldDef struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"` // wire type name, e.g. unsignedInt, string, ipV4Addr
	Disabled bool   `json:"disabled,omitempty"`
}

// One input line: {"session":1,"template":1,"fields":{"name":value}}
type Line struct {
	Session  uint8          `json:"session"`
	Template uint16         `json:"template"`
	Fields   map[string]any `json:"fields"`
}

// Converted field values by field name, carried in Record.Ctx
type Values map[string]template.Value

// Hands a converted record to the exporter. May block for backpressure.
type SubmitFunc func(ctx context.Context, sessionID uint8, templateID uint16, rec template.Record) error

type fieldType struct {
	name string
	wire template.WireType
}

// Field types per session and template, used to convert line values
type Catalog map[uint8]map[uint16][]fieldType

type Source struct {
	Namespace []string
	input     io.Reader
	path      string // set when following a file
	catalog   Catalog
	submit    SubmitFunc
	Metrics   *MetricStorage
}

type MetricStorage struct {
	LinesRead atomic.Uint64
	Submitted atomic.Uint64
	Rejected  atomic.Uint64
}
