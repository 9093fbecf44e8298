package template

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decodes a record encoded with tmpl into one value per enabled field
func Decode(tmpl *Template, record []byte) (values []Value, err error) {
	cursor := 0
	for _, key := range tmpl.keys {
		field := key.Get()
		if !field.Enabled {
			continue
		}

		if field.Type.Variable() {
			if len(record)-cursor < 4 {
				err = fmt.Errorf("%w: no length prefix for %q", ErrRecordMismatch, field.Name)
				return
			}
			length := int(binary.BigEndian.Uint32(record[cursor:]))
			cursor += 4
			if length > len(record)-cursor {
				err = fmt.Errorf("%w: %q claims %d bytes, %d left", ErrRecordMismatch, field.Name, length, len(record)-cursor)
				return
			}
			data := make([]byte, length)
			copy(data, record[cursor:])
			values = append(values, Value{Bytes: data})
			cursor += length
			continue
		}

		size := field.Type.Size()
		if len(record)-cursor < size {
			err = fmt.Errorf("%w: %q needs %d bytes, %d left", ErrRecordMismatch, field.Name, size, len(record)-cursor)
			return
		}
		values = append(values, readWire(record[cursor:cursor+size], field.Type))
		cursor += size
	}

	if cursor != len(record) {
		err = fmt.Errorf("%w: %d trailing bytes", ErrRecordMismatch, len(record)-cursor)
	}
	return
}

// Typed value of a network order fixed field
func readWire(field []byte, t WireType) (value Value) {
	info := wireTypes[t]
	var raw uint64
	switch info.size {
	case 1:
		raw = uint64(field[0])
	case 2:
		raw = uint64(binary.BigEndian.Uint16(field))
	case 4:
		raw = uint64(binary.BigEndian.Uint32(field))
	case 8:
		raw = binary.BigEndian.Uint64(field)
	}

	switch info.kind {
	case kindBool:
		value.Bool = raw != 0
	case kindOctets:
		value.Bytes = append([]byte(nil), field...)
	case kindFloat:
		if info.size == 4 {
			value.Float = float64(math.Float32frombits(uint32(raw)))
		} else {
			value.Float = math.Float64frombits(raw)
		}
	case kindSigned:
		shift := 64 - 8*info.size
		value.Int = int64(raw<<shift) >> shift
	default:
		value.Uint = raw
	}
	return
}
