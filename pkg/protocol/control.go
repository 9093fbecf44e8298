package protocol

import "fmt"

// Body of a protocol message
type Body interface {
	MessageID() uint8
	appendBody(buf []byte) []byte
}

type decodable interface {
	Body
	readBody(r *reader)
}

// Field description inside a template block
type FieldDescriptor struct {
	TypeID  uint32
	FieldID uint32
	Name    string
	Enabled bool
}

// One template as announced in TEMPLATE_DATA and related messages
type TemplateBlock struct {
	TemplateID uint16
	SchemaName string
	TypeName   string
	Fields     []FieldDescriptor
}

// One session as listed in GET_SESSIONS_RESPONSE
type SessionBlock struct {
	SessionID           uint8
	Reserved            uint8
	Name                string
	Description         string
	AckTimeInterval     uint32
	AckSequenceInterval uint32
}

type Connect struct {
	InitiatorID       uint32 // IPv4 address of the initiator as integer
	InitiatorPort     uint16
	Capabilities      uint32
	KeepAliveInterval uint32 // seconds
	VendorID          string
}

type ConnectResponse struct {
	Capabilities      uint32
	KeepAliveInterval uint32 // seconds
	VendorID          string
}

type Disconnect struct{}

type FlowStart struct{}

type FlowStop struct {
	ReasonCode uint16
	ReasonInfo string
}

type SessionStart struct {
	ExporterBootTime          uint32
	FirstRecordSequenceNumber uint64
	DroppedRecordCount        uint64
	Primary                   bool
	AckTimeInterval           uint32
	AckSequenceInterval       uint32
	DocumentID                [16]byte
}

type SessionStop struct {
	ReasonCode uint16
	ReasonInfo string
}

type TemplateData struct {
	ConfigID  uint16
	Flags     uint8
	Templates []TemplateBlock
}

type FinalTemplateDataAck struct{}

type GetSessions struct {
	RequestID uint16
}

type GetSessionsResponse struct {
	RequestID uint16
	Sessions  []SessionBlock
}

type GetTemplates struct {
	RequestID uint16
}

type GetTemplatesResponse struct {
	RequestID uint16
	ConfigID  uint16
	Templates []TemplateBlock
}

type ModifyTemplate struct {
	ConfigID  uint16
	Flags     uint8
	Templates []TemplateBlock
}

type ModifyTemplateResponse struct {
	ConfigID  uint16
	Flags     uint8
	Templates []TemplateBlock
}

type StartNegotiation struct{}

type StartNegotiationReject struct{}

type DataAck struct {
	ConfigID       uint16
	SequenceNumber uint64
}

type Error struct {
	Timestamp   uint32
	ErrorCode   uint16
	Description string
}

type KeepAlive struct{}

// Opaque encrypted envelope wrapping another complete frame
type Sealed struct {
	Envelope []byte
}

// Decoded DATA message, Record aliases the frame
type Data struct {
	DataHeader
	Record []byte
}

func (Connect) MessageID() uint8                { return MsgConnect }
func (ConnectResponse) MessageID() uint8        { return MsgConnectResponse }
func (Disconnect) MessageID() uint8             { return MsgDisconnect }
func (FlowStart) MessageID() uint8              { return MsgFlowStart }
func (FlowStop) MessageID() uint8               { return MsgFlowStop }
func (SessionStart) MessageID() uint8           { return MsgSessionStart }
func (SessionStop) MessageID() uint8            { return MsgSessionStop }
func (TemplateData) MessageID() uint8           { return MsgTemplateData }
func (FinalTemplateDataAck) MessageID() uint8   { return MsgFinalTemplateDataAck }
func (GetSessions) MessageID() uint8            { return MsgGetSessions }
func (GetSessionsResponse) MessageID() uint8    { return MsgGetSessionsResponse }
func (GetTemplates) MessageID() uint8           { return MsgGetTemplates }
func (GetTemplatesResponse) MessageID() uint8   { return MsgGetTemplatesResponse }
func (ModifyTemplate) MessageID() uint8         { return MsgModifyTemplate }
func (ModifyTemplateResponse) MessageID() uint8 { return MsgModifyTemplateResponse }
func (StartNegotiation) MessageID() uint8       { return MsgStartNegotiation }
func (StartNegotiationReject) MessageID() uint8 { return MsgStartNegotiationReject }
func (DataAck) MessageID() uint8                { return MsgDataAck }
func (Error) MessageID() uint8                  { return MsgError }
func (KeepAlive) MessageID() uint8              { return MsgKeepAlive }
func (Sealed) MessageID() uint8                 { return MsgSealed }
func (Data) MessageID() uint8                   { return MsgData }

// Empty bodies
func (Disconnect) appendBody(buf []byte) []byte             { return buf }
func (FlowStart) appendBody(buf []byte) []byte              { return buf }
func (FinalTemplateDataAck) appendBody(buf []byte) []byte   { return buf }
func (StartNegotiation) appendBody(buf []byte) []byte       { return buf }
func (StartNegotiationReject) appendBody(buf []byte) []byte { return buf }
func (KeepAlive) appendBody(buf []byte) []byte              { return buf }
func (*Disconnect) readBody(*reader)                        {}
func (*FlowStart) readBody(*reader)                         {}
func (*FinalTemplateDataAck) readBody(*reader)              {}
func (*StartNegotiation) readBody(*reader)                  {}
func (*StartNegotiationReject) readBody(*reader)            {}
func (*KeepAlive) readBody(*reader)                         {}

// Builds a complete frame for a control message
func Encode(sessionID uint8, body Body) (frame []byte) {
	frame = make([]byte, LenHeader, 64)
	frame = body.appendBody(frame)
	PutHeader(frame, Header{
		Version:   Version,
		MessageID: body.MessageID(),
		SessionID: sessionID,
		Length:    uint32(len(frame)),
	})
	return
}

// Parses a complete frame into its header and typed body.
// DATA frames decode into *Data whose Record aliases frame.
func Decode(frame []byte) (header Header, body Body, err error) {
	header, err = ParseHeader(frame)
	if err != nil {
		return
	}

	if header.MessageID == MsgData {
		var data Data
		_, data.DataHeader, data.Record, err = ParseData(frame)
		if err != nil {
			return
		}
		body = &data
		return
	}

	factory, ok := bodyFactories[header.MessageID]
	if !ok {
		err = fmt.Errorf("%w: 0x%02x", ErrUnknownType, header.MessageID)
		return
	}
	decoded := factory()

	r := &reader{buf: frame[LenHeader:header.Length]}
	decoded.readBody(r)
	if r.err != nil {
		err = fmt.Errorf("decoding %s: %w", MessageName(header.MessageID), r.err)
		return
	}
	if r.off != len(r.buf) {
		err = fmt.Errorf("decoding %s: %d trailing bytes", MessageName(header.MessageID), len(r.buf)-r.off)
		return
	}
	body = decoded
	return
}

var bodyFactories = map[uint8]func() decodable{
	MsgConnect:                func() decodable { return &Connect{} },
	MsgConnectResponse:        func() decodable { return &ConnectResponse{} },
	MsgDisconnect:             func() decodable { return &Disconnect{} },
	MsgFlowStart:              func() decodable { return &FlowStart{} },
	MsgFlowStop:               func() decodable { return &FlowStop{} },
	MsgSessionStart:           func() decodable { return &SessionStart{} },
	MsgSessionStop:            func() decodable { return &SessionStop{} },
	MsgTemplateData:           func() decodable { return &TemplateData{} },
	MsgFinalTemplateDataAck:   func() decodable { return &FinalTemplateDataAck{} },
	MsgGetSessions:            func() decodable { return &GetSessions{} },
	MsgGetSessionsResponse:    func() decodable { return &GetSessionsResponse{} },
	MsgGetTemplates:           func() decodable { return &GetTemplates{} },
	MsgGetTemplatesResponse:   func() decodable { return &GetTemplatesResponse{} },
	MsgModifyTemplate:         func() decodable { return &ModifyTemplate{} },
	MsgModifyTemplateResponse: func() decodable { return &ModifyTemplateResponse{} },
	MsgStartNegotiation:       func() decodable { return &StartNegotiation{} },
	MsgStartNegotiationReject: func() decodable { return &StartNegotiationReject{} },
	MsgDataAck:                func() decodable { return &DataAck{} },
	MsgError:                  func() decodable { return &Error{} },
	MsgKeepAlive:              func() decodable { return &KeepAlive{} },
	MsgSealed:                 func() decodable { return &Sealed{} },
}
