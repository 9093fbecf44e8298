package protocol

import (
	"encoding/binary"
	"fmt"
)

// Appends a length prefixed UTF-8 string
func appendString(buf []byte, text string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(text)))
	return append(buf, text...)
}

func appendBool(buf []byte, value bool) []byte {
	if value {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// Bounds checked sequential reader. The first failure sticks.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) (field []byte) {
	if r.err != nil {
		return
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBody, n, r.off, len(r.buf)-r.off)
		return
	}
	field = r.buf[r.off : r.off+n]
	r.off += n
	return
}

func (r *reader) u8() (value uint8) {
	if field := r.take(1); field != nil {
		value = field[0]
	}
	return
}

func (r *reader) u16() (value uint16) {
	if field := r.take(2); field != nil {
		value = binary.BigEndian.Uint16(field)
	}
	return
}

func (r *reader) u32() (value uint32) {
	if field := r.take(4); field != nil {
		value = binary.BigEndian.Uint32(field)
	}
	return
}

func (r *reader) u64() (value uint64) {
	if field := r.take(8); field != nil {
		value = binary.BigEndian.Uint64(field)
	}
	return
}

func (r *reader) boolean() (value bool) {
	value = r.u8() != 0
	return
}

func (r *reader) str() (text string) {
	length := r.u32()
	if r.err != nil {
		return
	}
	if int64(length) > int64(len(r.buf)-r.off) {
		r.err = fmt.Errorf("%w: string of %d bytes at offset %d", ErrShortBody, length, r.off)
		return
	}
	text = string(r.take(int(length)))
	return
}

// Bounded element count so a corrupt count cannot force a huge allocation
func (r *reader) count(minElemSize int) (n int) {
	raw := r.u32()
	if r.err != nil {
		return
	}
	if int64(raw)*int64(minElemSize) > int64(len(r.buf)-r.off) {
		r.err = fmt.Errorf("%w: %d elements do not fit in %d bytes", ErrShortBody, raw, len(r.buf)-r.off)
		return
	}
	n = int(raw)
	return
}
