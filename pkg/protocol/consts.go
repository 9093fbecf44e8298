package protocol

const (
	// Protocol version carried in every common header
	Version uint8 = 2

	// Wire field lengths
	LenHeader     int = 8 // version, message id, session id, flags, length
	LenDataHeader int = 2 + 2 + 1 + 8
	LenRecordLen  int = 4
	// Offset of the record bytes inside a DATA message
	DataRecordOffset int = LenHeader + LenDataHeader + LenRecordLen

	// Offsets inside a DATA message
	offMsgID      int = 1
	offSessionID  int = 2
	offFlags      int = 3
	offLength     int = 4
	offTemplateID int = LenHeader
	offConfigID   int = offTemplateID + 2
	offDataFlags  int = offConfigID + 2
	offDSN        int = offDataFlags + 1
	offRecordLen  int = offDSN + 8

	// DATA flag bits
	DataFlagDuplicate uint8 = 0x01

	// Largest frame the protocol will accept from a peer
	MaxMessageLen int = 16 << 20
)

// Message identifiers
const (
	MsgFlowStart              uint8 = 0x01
	MsgFlowStop               uint8 = 0x03
	MsgConnect                uint8 = 0x05
	MsgConnectResponse        uint8 = 0x06
	MsgDisconnect             uint8 = 0x07
	MsgSessionStart           uint8 = 0x08
	MsgSessionStop            uint8 = 0x09
	MsgTemplateData           uint8 = 0x10
	MsgFinalTemplateDataAck   uint8 = 0x13
	MsgGetSessions            uint8 = 0x14
	MsgGetSessionsResponse    uint8 = 0x15
	MsgGetTemplates           uint8 = 0x16
	MsgGetTemplatesResponse   uint8 = 0x17
	MsgModifyTemplate         uint8 = 0x1a
	MsgModifyTemplateResponse uint8 = 0x1b
	MsgStartNegotiation       uint8 = 0x1d
	MsgStartNegotiationReject uint8 = 0x1e
	MsgData                   uint8 = 0x20
	MsgDataAck                uint8 = 0x21
	MsgError                  uint8 = 0x23
	MsgKeepAlive              uint8 = 0x40
	MsgSealed                 uint8 = 0xf0 // vendor range: encrypted envelope around another frame
)

// Capability flags exchanged in CONNECT/CONNECT_RESPONSE
const (
	CapStructures     uint32 = 0x01
	CapMultiSession   uint32 = 0x02
	CapTemplateNegot  uint32 = 0x04
	CapSealedEnvelope uint32 = 0x80000000
)

// Session stop / flow stop reason codes
const (
	ReasonEndOfData      uint16 = 0
	ReasonHandOver       uint16 = 1
	ReasonDeactivate     uint16 = 2
	ReasonTemplateUpdate uint16 = 3
	ReasonVendor         uint16 = 256
)

// Error message codes
const (
	ErrCodeKeepAliveExpired uint16 = 0
	ErrCodeMessageInvalid   uint16 = 1
	ErrCodeSessionInvalid   uint16 = 2
	ErrCodeDecodeError      uint16 = 3
)

var msgNames = map[uint8]string{
	MsgFlowStart:              "FLOW_START",
	MsgFlowStop:               "FLOW_STOP",
	MsgConnect:                "CONNECT",
	MsgConnectResponse:        "CONNECT_RESPONSE",
	MsgDisconnect:             "DISCONNECT",
	MsgSessionStart:           "SESSION_START",
	MsgSessionStop:            "SESSION_STOP",
	MsgTemplateData:           "TEMPLATE_DATA",
	MsgFinalTemplateDataAck:   "FINAL_TEMPLATE_DATA_ACK",
	MsgGetSessions:            "GET_SESSIONS",
	MsgGetSessionsResponse:    "GET_SESSIONS_RESPONSE",
	MsgGetTemplates:           "GET_TEMPLATES",
	MsgGetTemplatesResponse:   "GET_TEMPLATES_RESPONSE",
	MsgModifyTemplate:         "MODIFY_TEMPLATE",
	MsgModifyTemplateResponse: "MODIFY_TEMPLATE_RESPONSE",
	MsgStartNegotiation:       "START_NEGOTIATION",
	MsgStartNegotiationReject: "START_NEGOTIATION_REJECT",
	MsgData:                   "DATA",
	MsgDataAck:                "DATA_ACK",
	MsgError:                  "ERROR",
	MsgKeepAlive:              "KEEP_ALIVE",
	MsgSealed:                 "SEALED",
}

// Human readable message name for logs
func MessageName(id uint8) (name string) {
	name, ok := msgNames[id]
	if !ok {
		name = "UNKNOWN"
	}
	return
}
