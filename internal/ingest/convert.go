package ingest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"ipdrexporter/internal/template"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Converts every field of a line for its template. Missing fields encode as zero values.
func (catalog Catalog) Convert(line Line) (values Values, err error) {
	templates, ok := catalog[line.Session]
	if !ok {
		err = fmt.Errorf("%w %d", ErrUnknownSession, line.Session)
		return
	}
	fields, ok := templates[line.Template]
	if !ok {
		err = fmt.Errorf("session %d: %w %d", line.Session, ErrUnknownTemplate, line.Template)
		return
	}

	values = make(Values, len(fields))
	for _, field := range fields {
		raw, present := line.Fields[field.name]
		if !present || raw == nil {
			continue
		}
		var value template.Value
		value, err = convert(raw, field.wire)
		if err != nil {
			err = fmt.Errorf("field %q (%s): %w", field.name, field.wire, err)
			return
		}
		values[field.name] = value
	}
	return
}

func convert(raw any, wire template.WireType) (value template.Value, err error) {
	switch wire {
	case template.TypeInt, template.TypeLong, template.TypeByte, template.TypeShort:
		value.Int, err = toInt(raw)
	case template.TypeUint, template.TypeUlong, template.TypeUbyte, template.TypeUshort:
		value.Uint, err = toUint(raw)
	case template.TypeFloat, template.TypeDouble:
		value.Float, err = toFloat(raw)
	case template.TypeBoolean:
		flag, ok := raw.(bool)
		if !ok {
			err = fmt.Errorf("%w: expected boolean, got %T", ErrBadValue, raw)
		}
		value.Bool = flag
	case template.TypeDateTime:
		value.Uint, err = toTime(raw, func(t time.Time) int64 { return t.Unix() })
	case template.TypeDateTimeMsec:
		value.Uint, err = toTime(raw, func(t time.Time) int64 { return t.UnixMilli() })
	case template.TypeDateTimeUsec:
		var usec uint64
		usec, err = toTime(raw, func(t time.Time) int64 { return t.UnixMicro() })
		value.Int = int64(usec)
	case template.TypeIPv4Addr:
		var addr netip.Addr
		addr, err = toAddr(raw)
		if err == nil && !addr.Is4() {
			err = fmt.Errorf("%w: %s is not IPv4", ErrBadValue, addr)
		}
		if err == nil {
			octets := addr.As4()
			value.Uint = uint64(octets[0])<<24 | uint64(octets[1])<<16 | uint64(octets[2])<<8 | uint64(octets[3])
		}
	case template.TypeIPv6Addr:
		var addr netip.Addr
		addr, err = toAddr(raw)
		if err == nil {
			octets := addr.As16()
			value.Bytes = octets[:]
		}
	case template.TypeIPAddr:
		var addr netip.Addr
		addr, err = toAddr(raw)
		if err == nil {
			value.Bytes = addr.AsSlice()
		}
	case template.TypeMACAddress:
		value.Uint, err = toMAC(raw)
	case template.TypeUUID:
		value.Bytes, err = toUUID(raw)
	case template.TypeHexBinary:
		text, ok := raw.(string)
		if !ok {
			err = fmt.Errorf("%w: expected hex string, got %T", ErrBadValue, raw)
			return
		}
		value.Bytes, err = hex.DecodeString(text)
	case template.TypeString:
		value.Bytes, err = toText(raw)
	default:
		err = fmt.Errorf("%w: unsupported type %s", ErrBadValue, wire)
	}
	return
}

func toInt(raw any) (number int64, err error) {
	switch typed := raw.(type) {
	case json.Number:
		number, err = typed.Int64()
	case string:
		number, err = strconv.ParseInt(typed, 10, 64)
	default:
		err = fmt.Errorf("%w: expected integer, got %T", ErrBadValue, raw)
	}
	return
}

func toUint(raw any) (number uint64, err error) {
	switch typed := raw.(type) {
	case json.Number:
		number, err = strconv.ParseUint(typed.String(), 10, 64)
	case string:
		number, err = strconv.ParseUint(typed, 10, 64)
	default:
		err = fmt.Errorf("%w: expected unsigned integer, got %T", ErrBadValue, raw)
	}
	return
}

func toFloat(raw any) (number float64, err error) {
	switch typed := raw.(type) {
	case json.Number:
		number, err = typed.Float64()
	case string:
		number, err = strconv.ParseFloat(typed, 64)
	default:
		err = fmt.Errorf("%w: expected number, got %T", ErrBadValue, raw)
	}
	return
}

// Numbers pass through as already scaled, strings are RFC 3339 timestamps
func toTime(raw any, scale func(time.Time) int64) (stamp uint64, err error) {
	switch typed := raw.(type) {
	case json.Number:
		stamp, err = strconv.ParseUint(typed.String(), 10, 64)
	case string:
		var parsed time.Time
		parsed, err = time.Parse(time.RFC3339Nano, typed)
		if err == nil {
			stamp = uint64(scale(parsed))
		}
	default:
		err = fmt.Errorf("%w: expected timestamp, got %T", ErrBadValue, raw)
	}
	return
}

func toAddr(raw any) (addr netip.Addr, err error) {
	text, ok := raw.(string)
	if !ok {
		err = fmt.Errorf("%w: expected address string, got %T", ErrBadValue, raw)
		return
	}
	addr, err = netip.ParseAddr(text)
	return
}

// MAC addresses travel as the low 48 bits of an unsigned long
func toMAC(raw any) (mac uint64, err error) {
	text, ok := raw.(string)
	if !ok {
		err = fmt.Errorf("%w: expected MAC string, got %T", ErrBadValue, raw)
		return
	}
	hw, err := net.ParseMAC(text)
	if err != nil {
		return
	}
	if len(hw) != 6 {
		err = fmt.Errorf("%w: %s is not a 48-bit MAC", ErrBadValue, text)
		return
	}
	for _, octet := range hw {
		mac = mac<<8 | uint64(octet)
	}
	return
}

func toUUID(raw any) (uuid []byte, err error) {
	text, ok := raw.(string)
	if !ok {
		err = fmt.Errorf("%w: expected UUID string, got %T", ErrBadValue, raw)
		return
	}
	uuid, err = hex.DecodeString(strings.ReplaceAll(text, "-", ""))
	if err == nil && len(uuid) != 16 {
		err = fmt.Errorf("%w: UUID must be 16 bytes, got %d", ErrBadValue, len(uuid))
	}
	return
}

func toText(raw any) (text []byte, err error) {
	switch typed := raw.(type) {
	case string:
		text = []byte(typed)
	case json.Number:
		text = []byte(typed.String())
	case bool:
		text = []byte(strconv.FormatBool(typed))
	default:
		err = fmt.Errorf("%w: expected string, got %T", ErrBadValue, raw)
	}
	return
}
