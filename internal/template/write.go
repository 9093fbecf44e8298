package template

import (
	"encoding/binary"
	"math"
)

// Converts a region's numeric fields from host to network byte order in place
func swapRegion(dst []byte, swaps []fieldSwap) {
	for _, swap := range swaps {
		field := dst[swap.at : swap.at+swap.width]
		switch swap.width {
		case 2:
			binary.BigEndian.PutUint16(field, binary.NativeEndian.Uint16(field))
		case 4:
			binary.BigEndian.PutUint32(field, binary.NativeEndian.Uint32(field))
		case 8:
			binary.BigEndian.PutUint64(field, binary.NativeEndian.Uint64(field))
		}
	}
}

// Copies an offset region out of the record image and swaps it
func writeRegion(dst []byte, region *copyRegion, fixed []byte) {
	copy(dst[:region.length], fixed[region.src:region.src+region.length])
	swapRegion(dst[:region.length], region.swaps)
}

// Writes one fixed length value in network byte order
func writeFixed(dst []byte, t WireType, value Value) {
	info := wireTypes[t]
	switch info.kind {
	case kindBool:
		dst[0] = 0
		if value.Bool {
			dst[0] = 1
		}
	case kindOctets:
		n := copy(dst[:info.size], value.Bytes)
		clear(dst[n:info.size])
	case kindFloat:
		if info.size == 4 {
			binary.BigEndian.PutUint32(dst, math.Float32bits(float32(value.Float)))
		} else {
			binary.BigEndian.PutUint64(dst, math.Float64bits(value.Float))
		}
	default:
		raw := value.Uint
		if info.kind == kindSigned {
			raw = uint64(value.Int)
		}
		putUint(dst, info.size, raw)
	}
}

func putUint(dst []byte, size int, raw uint64) {
	switch size {
	case 1:
		dst[0] = byte(raw)
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(raw))
	case 4:
		binary.BigEndian.PutUint32(dst, uint32(raw))
	case 8:
		binary.BigEndian.PutUint64(dst, raw)
	}
}

// Writes a length prefixed value, returns bytes written
func writeVariable(dst []byte, data []byte) (written int) {
	binary.BigEndian.PutUint32(dst, uint32(len(data)))
	written = 4 + copy(dst[4:], data)
	return
}

// Host order value of a fixed field read from a record image
func readHost(fixed []byte, offset int, t WireType) (value Value) {
	info := wireTypes[t]
	field := fixed[offset : offset+info.size]
	switch info.kind {
	case kindBool:
		value.Bool = field[0] != 0
	case kindOctets:
		value.Bytes = field
	case kindFloat:
		if info.size == 4 {
			value.Float = float64(math.Float32frombits(binary.NativeEndian.Uint32(field)))
		} else {
			value.Float = math.Float64frombits(binary.NativeEndian.Uint64(field))
		}
	case kindSigned:
		switch info.size {
		case 1:
			value.Int = int64(int8(field[0]))
		case 2:
			value.Int = int64(int16(binary.NativeEndian.Uint16(field)))
		case 4:
			value.Int = int64(int32(binary.NativeEndian.Uint32(field)))
		case 8:
			value.Int = int64(binary.NativeEndian.Uint64(field))
		}
	default:
		switch info.size {
		case 1:
			value.Uint = uint64(field[0])
		case 2:
			value.Uint = uint64(binary.NativeEndian.Uint16(field))
		case 4:
			value.Uint = uint64(binary.NativeEndian.Uint32(field))
		case 8:
			value.Uint = binary.NativeEndian.Uint64(field)
		}
	}
	return
}

// Writes a host order value into a record image, the inverse of readHost
func PutHost(fixed []byte, offset int, t WireType, value Value) {
	info := wireTypes[t]
	field := fixed[offset : offset+info.size]
	switch info.kind {
	case kindBool:
		field[0] = 0
		if value.Bool {
			field[0] = 1
		}
	case kindOctets:
		n := copy(field, value.Bytes)
		clear(field[n:])
	case kindFloat:
		if info.size == 4 {
			binary.NativeEndian.PutUint32(field, math.Float32bits(float32(value.Float)))
		} else {
			binary.NativeEndian.PutUint64(field, math.Float64bits(value.Float))
		}
	default:
		raw := value.Uint
		if info.kind == kindSigned {
			raw = uint64(value.Int)
		}
		switch info.size {
		case 1:
			field[0] = byte(raw)
		case 2:
			binary.NativeEndian.PutUint16(field, uint16(raw))
		case 4:
			binary.NativeEndian.PutUint32(field, uint32(raw))
		case 8:
			binary.NativeEndian.PutUint64(field, raw)
		}
	}
}

// Accessor reading a fixed field from the record image, equivalent to
// offset access. Used where a caller wants callback access over the same layout.
func HostAccessor(offset int, t WireType) Accessor {
	if t.Variable() {
		return func(rec Record) Value { return Value{Bytes: rec.Var[offset]} }
	}
	return func(rec Record) Value { return readHost(rec.Fixed, offset, t) }
}
