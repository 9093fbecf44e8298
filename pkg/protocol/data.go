package protocol

import (
	"encoding/binary"
	"fmt"
)

// DATA specific header following the common header
type DataHeader struct {
	TemplateID uint16
	ConfigID   uint16
	Flags      uint8
	DSN        uint64
}

// Total DATA message length for a record of recordLen bytes
func DataMessageLength(recordLen int) (length int) {
	length = DataRecordOffset + recordLen
	return
}

// Writes common header, data header and record length into msg.
// msg must be exactly DataMessageLength(recordLen) bytes.
func PutDataHeaders(msg []byte, sessionID uint8, data DataHeader, recordLen int) {
	PutHeader(msg, Header{
		Version:   Version,
		MessageID: MsgData,
		SessionID: sessionID,
		Length:    uint32(len(msg)),
	})
	binary.BigEndian.PutUint16(msg[offTemplateID:], data.TemplateID)
	binary.BigEndian.PutUint16(msg[offConfigID:], data.ConfigID)
	msg[offDataFlags] = data.Flags
	binary.BigEndian.PutUint64(msg[offDSN:], data.DSN)
	binary.BigEndian.PutUint32(msg[offRecordLen:], uint32(recordLen))
}

// Parses a DATA message returning its headers and record bytes
func ParseData(msg []byte) (header Header, data DataHeader, record []byte, err error) {
	header, err = ParseHeader(msg)
	if err != nil {
		return
	}
	if header.MessageID != MsgData {
		err = fmt.Errorf("%w: got %s", ErrNotData, MessageName(header.MessageID))
		return
	}
	if int(header.Length) < DataRecordOffset {
		err = ErrShortBody
		return
	}
	msg = msg[:header.Length]
	data = DataHeader{
		TemplateID: binary.BigEndian.Uint16(msg[offTemplateID:]),
		ConfigID:   binary.BigEndian.Uint16(msg[offConfigID:]),
		Flags:      msg[offDataFlags],
		DSN:        binary.BigEndian.Uint64(msg[offDSN:]),
	}
	recordLen := int(binary.BigEndian.Uint32(msg[offRecordLen:]))
	if DataRecordOffset+recordLen != len(msg) {
		err = fmt.Errorf("%w: record length %d in %d byte message", ErrBadLength, recordLen, len(msg))
		return
	}
	record = msg[DataRecordOffset:]
	return
}

// Sequence number of a stored DATA message (no validation)
func DataDSN(msg []byte) (dsn uint64) {
	dsn = binary.BigEndian.Uint64(msg[offDSN:])
	return
}

// Session id of any stored message
func MessageSession(msg []byte) (sessionID uint8) {
	sessionID = msg[offSessionID]
	return
}

// Message id of any stored message
func MessageID(msg []byte) (id uint8) {
	id = msg[offMsgID]
	return
}

// Sets or clears the duplicate bit of a stored DATA message in place
func SetDuplicate(msg []byte, duplicate bool) {
	if duplicate {
		msg[offDataFlags] |= DataFlagDuplicate
	} else {
		msg[offDataFlags] &^= DataFlagDuplicate
	}
}
