package template

import (
	"bytes"
	"errors"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/pkg/protocol"
	"math"
	"reflect"
	"testing"
)

type sample struct {
	name  string
	typ   WireType
	value Value
}

var fixedSamples = []sample{
	{"active", TypeBoolean, Value{Bool: true}},
	{"hops", TypeByte, Value{Int: -5}},
	{"class", TypeUbyte, Value{Uint: 200}},
	{"delta", TypeShort, Value{Int: -1234}},
	{"port", TypeUshort, Value{Uint: 60000}},
	{"drift", TypeInt, Value{Int: -123456}},
	{"octets", TypeUint, Value{Uint: 4_000_000_000}},
	{"balance", TypeLong, Value{Int: -1 << 40}},
	{"packets", TypeUlong, Value{Uint: 1<<63 + 5}},
	{"ratio", TypeFloat, Value{Float: 1.5}},
	{"load", TypeDouble, Value{Float: -2.25}},
	{"start", TypeDateTime, Value{Uint: 1_700_000_000}},
	{"startMsec", TypeDateTimeMsec, Value{Uint: 1_700_000_000_123}},
	{"startUsec", TypeDateTimeUsec, Value{Int: 1_700_000_000_123_456}},
	{"cmIp", TypeIPv4Addr, Value{Uint: 0x0a000001}},
	{"cpeIp", TypeIPv6Addr, Value{Bytes: []byte{0x20, 0x01, 0x0d, 0xb8, 15: 1}}},
	{"recordId", TypeUUID, Value{Bytes: []byte{0: 0xaa, 7: 0x42, 15: 0xff}}},
	{"mac", TypeMACAddress, Value{Uint: 0x0000aabbccddeeff}},
}

var variableSamples = []sample{
	{"subscriber", TypeString, Value{Bytes: []byte("subscriber-1")}},
	{"opaque", TypeHexBinary, Value{Bytes: []byte{0xde, 0xad}}},
	{"peerIp", TypeIPAddr, Value{Bytes: []byte{192, 0, 2, 7}}},
	{"empty", TypeString, Value{Bytes: []byte{}}},
}

type accessMode int

const (
	modeOffset accessMode = iota
	modeCallback
	modeMixed
)

// Builds a template over samples interleaving variable fields, plus a
// matching record and expected decoded values
func buildCase(t *testing.T, mode accessMode, withVariable bool) (tmpl *Template, rec Record, expect []Value) {
	t.Helper()

	var ordered []sample
	for i, s := range fixedSamples {
		ordered = append(ordered, s)
		if withVariable && i%5 == 4 {
			ordered = append(ordered, variableSamples[(i/5)%len(variableSamples)])
		}
	}
	if withVariable {
		ordered = append(ordered, variableSamples[len(variableSamples)-1])
	}

	tmpl = New(1, "test", "Sample")
	offset := 0
	for i, s := range ordered {
		field := Field{ID: uint32(i + 1), Name: s.name, Type: s.typ, Enabled: true}
		if s.typ.Variable() {
			field.Offset = len(rec.Var)
			rec.Var = append(rec.Var, s.value.Bytes)
		} else {
			field.Offset = offset
			rec.Fixed = append(rec.Fixed, make([]byte, s.typ.Size())...)
			PutHost(rec.Fixed, offset, s.typ, s.value)
			offset += s.typ.Size()
		}

		if mode == modeCallback || (mode == modeMixed && i%2 == 1) {
			field.Accessor = HostAccessor(field.Offset, field.Type)
		}
		if err := tmpl.AddField(field); err != nil {
			t.Fatalf("add field %q: %v", s.name, err)
		}
		expect = append(expect, s.value)
	}
	return
}

func TestStrategiesRoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		mode         accessMode
		withVariable bool
		expect       Strategy
	}{
		{"fixed offset", modeOffset, false, FixedOffset},
		{"fixed callback", modeCallback, false, FixedCallback},
		{"fixed mixed", modeMixed, false, FixedMixed},
		{"variable offset", modeOffset, true, VariableOffset},
		{"variable callback", modeCallback, true, VariableCallback},
		{"variable mixed", modeMixed, true, VariableMixed},
	}

	outputs := make(map[bool][]byte)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, rec, expect := buildCase(t, tt.mode, tt.withVariable)
			if tmpl.Strategy() != tt.expect {
				t.Fatalf("expected strategy %s, got %s", tt.expect, tmpl.Strategy())
			}

			pool, err := bufpool.New(bufpool.Config{ChunkSize: 1024})
			if err != nil {
				t.Fatalf("pool: %v", err)
			}
			encoder := NewEncoder(pool)
			handle, err := encoder.Encode(tmpl, 7, 3, 99, rec)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			msg := pool.Message(handle)
			header, data, record, err := protocol.ParseData(msg)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if header.SessionID != 3 || data.TemplateID != 1 || data.ConfigID != 7 || data.DSN != 99 {
				t.Fatalf("unexpected headers %+v %+v", header, data)
			}
			if pool.UsedMemory() != uint64(len(msg)) {
				t.Fatalf("allocation %d does not match message length %d", pool.UsedMemory(), len(msg))
			}

			values, err := Decode(tmpl, record)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(values) != len(expect) {
				t.Fatalf("expected %d values, got %d", len(expect), len(values))
			}
			for i := range expect {
				if !reflect.DeepEqual(values[i], expect[i]) {
					t.Fatalf("field %d: expected %+v, got %+v", i, expect[i], values[i])
				}
			}

			reference := make([]byte, len(record))
			if n := tmpl.writeGeneric(reference, rec); n != len(record) {
				t.Fatalf("reference encoder wrote %d of %d bytes", n, len(record))
			}
			if !bytes.Equal(reference, record) {
				t.Fatalf("strategy output differs from reference\n got: % x\nwant: % x", record, reference)
			}

			// Same logical record, same bytes whatever the access mode
			if previous, ok := outputs[tt.withVariable]; ok && !bytes.Equal(previous, record) {
				t.Fatalf("output differs between access modes")
			}
			outputs[tt.withVariable] = append([]byte(nil), record...)
		})
	}
}

func TestNetworkByteOrder(t *testing.T) {
	tmpl := New(2, "test", "Order")
	tmpl.AddField(Field{ID: 1, Name: "a", Type: TypeUshort, Enabled: true, Offset: 0})
	tmpl.AddField(Field{ID: 2, Name: "b", Type: TypeUint, Enabled: true, Offset: 2})
	tmpl.AddField(Field{ID: 3, Name: "s", Type: TypeString, Enabled: true, Offset: 0})

	rec := Record{Fixed: make([]byte, 6), Var: [][]byte{[]byte("hi")}}
	PutHost(rec.Fixed, 0, TypeUshort, Value{Uint: 0x0102})
	PutHost(rec.Fixed, 2, TypeUint, Value{Uint: 0x03040506})

	out, err := tmpl.AppendRecord(nil, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0, 0, 0, 2, 'h', 'i'}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}
}

func TestCopyRegions(t *testing.T) {
	tests := []struct {
		name    string
		fields  []Field
		regions int
		fixed   int
	}{
		{
			name: "contiguous offsets merge",
			fields: []Field{
				{ID: 1, Name: "a", Type: TypeUint, Enabled: true, Offset: 0},
				{ID: 2, Name: "b", Type: TypeUshort, Enabled: true, Offset: 4},
				{ID: 3, Name: "c", Type: TypeUlong, Enabled: true, Offset: 6},
			},
			regions: 1,
			fixed:   14,
		},
		{
			name: "gap splits",
			fields: []Field{
				{ID: 1, Name: "a", Type: TypeUint, Enabled: true, Offset: 0},
				{ID: 2, Name: "b", Type: TypeUint, Enabled: true, Offset: 8},
			},
			regions: 2,
			fixed:   8,
		},
		{
			name: "disabled field splits",
			fields: []Field{
				{ID: 1, Name: "a", Type: TypeUint, Enabled: true, Offset: 0},
				{ID: 2, Name: "b", Type: TypeUint, Enabled: false, Offset: 4},
				{ID: 3, Name: "c", Type: TypeUint, Enabled: true, Offset: 8},
			},
			regions: 2,
			fixed:   8,
		},
		{
			name: "callback breaks run",
			fields: []Field{
				{ID: 1, Name: "a", Type: TypeUint, Enabled: true, Offset: 0},
				{ID: 2, Name: "b", Type: TypeUint, Enabled: true, Offset: 4, Accessor: HostAccessor(4, TypeUint)},
				{ID: 3, Name: "c", Type: TypeUint, Enabled: true, Offset: 8},
			},
			regions: 2,
			fixed:   12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := New(1, "test", "Regions")
			for _, field := range tt.fields {
				if err := tmpl.AddField(field); err != nil {
					t.Fatalf("add: %v", err)
				}
			}
			if tmpl.CopyRegions() != tt.regions || tmpl.FixedSize() != tt.fixed {
				t.Fatalf("expected %d regions / %d bytes, got %d / %d", tt.regions, tt.fixed, tmpl.CopyRegions(), tmpl.FixedSize())
			}
		})
	}
}

func TestAddFieldValidation(t *testing.T) {
	tmpl := New(1, "test", "Validation")
	if err := tmpl.AddField(Field{ID: 1, Name: "a", Type: TypeUint}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		field  Field
		expect error
	}{
		{"duplicate id", Field{ID: 1, Name: "b", Type: TypeUint}, ErrDuplicateField},
		{"duplicate name", Field{ID: 2, Name: "a", Type: TypeUint}, ErrDuplicateField},
		{"unknown type", Field{ID: 3, Name: "c", Type: 0x99}, ErrUnknownType},
		{"missing name", Field{ID: 4, Type: TypeUint}, ErrInvalidField},
		{"negative offset", Field{ID: 5, Name: "e", Type: TypeUint, Offset: -1}, ErrInvalidField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tmpl.AddField(tt.field); !errors.Is(err, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, err)
			}
			if len(tmpl.Fields()) != 1 {
				t.Fatalf("rejected field was added")
			}
		})
	}
}

func TestRecordMismatch(t *testing.T) {
	tmpl := New(1, "test", "Mismatch")
	tmpl.AddField(Field{ID: 1, Name: "a", Type: TypeUlong, Enabled: true, Offset: 4})
	tmpl.AddField(Field{ID: 2, Name: "s", Type: TypeString, Enabled: true, Offset: 1})

	if _, err := tmpl.AppendRecord(nil, Record{Fixed: make([]byte, 8), Var: [][]byte{nil, nil}}); !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("expected short image error, got %v", err)
	}
	if _, err := tmpl.AppendRecord(nil, Record{Fixed: make([]byte, 12), Var: [][]byte{nil}}); !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("expected missing slot error, got %v", err)
	}
	if _, err := Decode(tmpl, []byte{1, 2, 3}); !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("expected truncated decode error, got %v", err)
	}
}

func TestFloatSpecials(t *testing.T) {
	tmpl := New(1, "test", "Floats")
	tmpl.AddField(Field{ID: 1, Name: "f", Type: TypeFloat, Enabled: true, Offset: 0})
	tmpl.AddField(Field{ID: 2, Name: "d", Type: TypeDouble, Enabled: true, Offset: 4})

	rec := Record{Fixed: make([]byte, 12)}
	PutHost(rec.Fixed, 0, TypeFloat, Value{Float: math.Inf(-1)})
	PutHost(rec.Fixed, 4, TypeDouble, Value{Float: math.MaxFloat64})

	out, _ := tmpl.AppendRecord(nil, rec)
	values, err := Decode(tmpl, out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !math.IsInf(values[0].Float, -1) || values[1].Float != math.MaxFloat64 {
		t.Fatalf("unexpected values %+v", values)
	}
}
