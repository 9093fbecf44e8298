package protocol

import "encoding/binary"

func (msg Connect) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, msg.InitiatorID)
	buf = binary.BigEndian.AppendUint16(buf, msg.InitiatorPort)
	buf = binary.BigEndian.AppendUint32(buf, msg.Capabilities)
	buf = binary.BigEndian.AppendUint32(buf, msg.KeepAliveInterval)
	return appendString(buf, msg.VendorID)
}

func (msg *Connect) readBody(r *reader) {
	msg.InitiatorID = r.u32()
	msg.InitiatorPort = r.u16()
	msg.Capabilities = r.u32()
	msg.KeepAliveInterval = r.u32()
	msg.VendorID = r.str()
}

func (msg ConnectResponse) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, msg.Capabilities)
	buf = binary.BigEndian.AppendUint32(buf, msg.KeepAliveInterval)
	return appendString(buf, msg.VendorID)
}

func (msg *ConnectResponse) readBody(r *reader) {
	msg.Capabilities = r.u32()
	msg.KeepAliveInterval = r.u32()
	msg.VendorID = r.str()
}

func (msg FlowStop) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, msg.ReasonCode)
	return appendString(buf, msg.ReasonInfo)
}

func (msg *FlowStop) readBody(r *reader) {
	msg.ReasonCode = r.u16()
	msg.ReasonInfo = r.str()
}

func (msg SessionStart) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, msg.ExporterBootTime)
	buf = binary.BigEndian.AppendUint64(buf, msg.FirstRecordSequenceNumber)
	buf = binary.BigEndian.AppendUint64(buf, msg.DroppedRecordCount)
	buf = appendBool(buf, msg.Primary)
	buf = binary.BigEndian.AppendUint32(buf, msg.AckTimeInterval)
	buf = binary.BigEndian.AppendUint32(buf, msg.AckSequenceInterval)
	return append(buf, msg.DocumentID[:]...)
}

func (msg *SessionStart) readBody(r *reader) {
	msg.ExporterBootTime = r.u32()
	msg.FirstRecordSequenceNumber = r.u64()
	msg.DroppedRecordCount = r.u64()
	msg.Primary = r.boolean()
	msg.AckTimeInterval = r.u32()
	msg.AckSequenceInterval = r.u32()
	copy(msg.DocumentID[:], r.take(len(msg.DocumentID)))
}

func (msg SessionStop) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, msg.ReasonCode)
	return appendString(buf, msg.ReasonInfo)
}

func (msg *SessionStop) readBody(r *reader) {
	msg.ReasonCode = r.u16()
	msg.ReasonInfo = r.str()
}

func appendTemplates(buf []byte, templates []TemplateBlock) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(templates)))
	for _, block := range templates {
		buf = binary.BigEndian.AppendUint16(buf, block.TemplateID)
		buf = appendString(buf, block.SchemaName)
		buf = appendString(buf, block.TypeName)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(block.Fields)))
		for _, field := range block.Fields {
			buf = binary.BigEndian.AppendUint32(buf, field.TypeID)
			buf = binary.BigEndian.AppendUint32(buf, field.FieldID)
			buf = appendString(buf, field.Name)
			buf = appendBool(buf, field.Enabled)
		}
	}
	return buf
}

const (
	minTemplateBlockLen   int = 2 + 4 + 4 + 4
	minFieldDescriptorLen int = 4 + 4 + 4 + 1
	minSessionBlockLen    int = 1 + 1 + 4 + 4 + 4 + 4
)

func readTemplates(r *reader) (templates []TemplateBlock) {
	count := r.count(minTemplateBlockLen)
	for i := 0; i < count && r.err == nil; i++ {
		block := TemplateBlock{
			TemplateID: r.u16(),
			SchemaName: r.str(),
			TypeName:   r.str(),
		}
		fields := r.count(minFieldDescriptorLen)
		for j := 0; j < fields && r.err == nil; j++ {
			block.Fields = append(block.Fields, FieldDescriptor{
				TypeID:  r.u32(),
				FieldID: r.u32(),
				Name:    r.str(),
				Enabled: r.boolean(),
			})
		}
		templates = append(templates, block)
	}
	return
}

func (msg TemplateData) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, msg.ConfigID)
	buf = append(buf, msg.Flags)
	return appendTemplates(buf, msg.Templates)
}

func (msg *TemplateData) readBody(r *reader) {
	msg.ConfigID = r.u16()
	msg.Flags = r.u8()
	msg.Templates = readTemplates(r)
}

func (msg ModifyTemplate) appendBody(buf []byte) []byte {
	return TemplateData(msg).appendBody(buf)
}

func (msg *ModifyTemplate) readBody(r *reader) {
	(*TemplateData)(msg).readBody(r)
}

func (msg ModifyTemplateResponse) appendBody(buf []byte) []byte {
	return TemplateData(msg).appendBody(buf)
}

func (msg *ModifyTemplateResponse) readBody(r *reader) {
	(*TemplateData)(msg).readBody(r)
}

func (msg GetSessions) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint16(buf, msg.RequestID)
}

func (msg *GetSessions) readBody(r *reader) {
	msg.RequestID = r.u16()
}

func (msg GetSessionsResponse) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, msg.RequestID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Sessions)))
	for _, session := range msg.Sessions {
		buf = append(buf, session.SessionID, session.Reserved)
		buf = appendString(buf, session.Name)
		buf = appendString(buf, session.Description)
		buf = binary.BigEndian.AppendUint32(buf, session.AckTimeInterval)
		buf = binary.BigEndian.AppendUint32(buf, session.AckSequenceInterval)
	}
	return buf
}

func (msg *GetSessionsResponse) readBody(r *reader) {
	msg.RequestID = r.u16()
	count := r.count(minSessionBlockLen)
	for i := 0; i < count && r.err == nil; i++ {
		msg.Sessions = append(msg.Sessions, SessionBlock{
			SessionID:           r.u8(),
			Reserved:            r.u8(),
			Name:                r.str(),
			Description:         r.str(),
			AckTimeInterval:     r.u32(),
			AckSequenceInterval: r.u32(),
		})
	}
}

func (msg GetTemplates) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint16(buf, msg.RequestID)
}

func (msg *GetTemplates) readBody(r *reader) {
	msg.RequestID = r.u16()
}

func (msg GetTemplatesResponse) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, msg.RequestID)
	buf = binary.BigEndian.AppendUint16(buf, msg.ConfigID)
	return appendTemplates(buf, msg.Templates)
}

func (msg *GetTemplatesResponse) readBody(r *reader) {
	msg.RequestID = r.u16()
	msg.ConfigID = r.u16()
	msg.Templates = readTemplates(r)
}

func (msg DataAck) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, msg.ConfigID)
	return binary.BigEndian.AppendUint64(buf, msg.SequenceNumber)
}

func (msg *DataAck) readBody(r *reader) {
	msg.ConfigID = r.u16()
	msg.SequenceNumber = r.u64()
}

func (msg Error) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, msg.Timestamp)
	buf = binary.BigEndian.AppendUint16(buf, msg.ErrorCode)
	return appendString(buf, msg.Description)
}

func (msg *Error) readBody(r *reader) {
	msg.Timestamp = r.u32()
	msg.ErrorCode = r.u16()
	msg.Description = r.str()
}

func (msg Sealed) appendBody(buf []byte) []byte {
	return append(buf, msg.Envelope...)
}

func (msg *Sealed) readBody(r *reader) {
	msg.Envelope = r.take(len(r.buf) - r.off)
}

func (msg Data) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, msg.TemplateID)
	buf = binary.BigEndian.AppendUint16(buf, msg.ConfigID)
	buf = append(buf, msg.Flags)
	buf = binary.BigEndian.AppendUint64(buf, msg.DSN)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Record)))
	return append(buf, msg.Record...)
}
