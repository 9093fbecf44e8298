// Bit-exact framing for the record streaming protocol.
// All multi-byte integers are big-endian.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortFrame  = errors.New("frame shorter than header")
	ErrBadLength   = errors.New("frame length field does not match frame")
	ErrBadVersion  = errors.New("unsupported protocol version")
	ErrNotData     = errors.New("message is not a DATA message")
	ErrShortBody   = errors.New("message body truncated")
	ErrUnknownType = errors.New("unknown message id")
)

// Common header present on every message
type Header struct {
	Version   uint8
	MessageID uint8
	SessionID uint8
	Flags     uint8
	Length    uint32 // Total message length including this header
}

// Writes header into the first LenHeader bytes of buf
func PutHeader(buf []byte, header Header) {
	_ = buf[LenHeader-1]
	buf[0] = header.Version
	buf[offMsgID] = header.MessageID
	buf[offSessionID] = header.SessionID
	buf[offFlags] = header.Flags
	binary.BigEndian.PutUint32(buf[offLength:], header.Length)
}

// Reads the common header, checking the length against the available bytes
func ParseHeader(buf []byte) (header Header, err error) {
	if len(buf) < LenHeader {
		err = ErrShortFrame
		return
	}
	header = Header{
		Version:   buf[0],
		MessageID: buf[offMsgID],
		SessionID: buf[offSessionID],
		Flags:     buf[offFlags],
		Length:    binary.BigEndian.Uint32(buf[offLength:]),
	}
	if header.Version != Version {
		err = fmt.Errorf("%w: %d", ErrBadVersion, header.Version)
		return
	}
	if int(header.Length) < LenHeader || int(header.Length) > len(buf) {
		err = fmt.Errorf("%w: header says %d, have %d", ErrBadLength, header.Length, len(buf))
		return
	}
	return
}

// Total length declared by a message header, 0 when buf cannot hold a header
func MessageLength(buf []byte) (length int) {
	if len(buf) < LenHeader {
		return
	}
	length = int(binary.BigEndian.Uint32(buf[offLength:]))
	return
}

// Splits the leading complete frame off a stream buffer.
// Returns need > 0 when more bytes are required.
func NextFrame(stream []byte) (frame []byte, rest []byte, need int, err error) {
	if len(stream) < LenHeader {
		need = LenHeader - len(stream)
		rest = stream
		return
	}
	length := MessageLength(stream)
	if length < LenHeader || length > MaxMessageLen {
		err = fmt.Errorf("%w: %d", ErrBadLength, length)
		return
	}
	if len(stream) < length {
		need = length - len(stream)
		rest = stream
		return
	}
	frame = stream[:length:length]
	rest = stream[length:]
	return
}
