package template

import (
	"errors"
	"ipdrexporter/internal/ownership"
)

var (
	ErrDuplicateField    = errors.New("duplicate field")
	ErrDuplicateTemplate = errors.New("duplicate template")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownTemplate   = errors.New("unknown template")
	ErrUnknownType       = errors.New("unknown wire type")
	ErrInvalidField      = errors.New("invalid field definition")
	ErrRecordMismatch    = errors.New("record does not match template")
)

// Wire type codes as announced in template data
type WireType uint32

const (
	TypeInt          WireType = 0x21
	TypeUint         WireType = 0x22
	TypeLong         WireType = 0x23
	TypeUlong        WireType = 0x24
	TypeFloat        WireType = 0x25
	TypeDouble       WireType = 0x26
	TypeHexBinary    WireType = 0x27
	TypeString       WireType = 0x28
	TypeBoolean      WireType = 0x29
	TypeByte         WireType = 0x2a
	TypeUbyte        WireType = 0x2b
	TypeShort        WireType = 0x2c
	TypeUshort       WireType = 0x2d
	TypeDateTime     WireType = 0x122
	TypeDateTimeMsec WireType = 0x224
	TypeIPv4Addr     WireType = 0x322
	TypeIPv6Addr     WireType = 0x427
	TypeIPAddr       WireType = 0x527
	TypeUUID         WireType = 0x627
	TypeDateTimeUsec WireType = 0x723
	TypeMACAddress   WireType = 0x824
)

// Value class of a wire type
type kind uint8

const (
	kindSigned kind = iota
	kindUnsigned
	kindFloat
	kindBool
	kindOctets   // fixed size byte array, copied verbatim
	kindVariable // 4-byte length prefix then bytes
)

type typeInfo struct {
	name string
	size int // wire size, 0 for variable
	kind kind
}

var wireTypes = map[WireType]typeInfo{
	TypeInt:          {"int", 4, kindSigned},
	TypeUint:         {"unsignedInt", 4, kindUnsigned},
	TypeLong:         {"long", 8, kindSigned},
	TypeUlong:        {"unsignedLong", 8, kindUnsigned},
	TypeFloat:        {"float", 4, kindFloat},
	TypeDouble:       {"double", 8, kindFloat},
	TypeHexBinary:    {"hexBinary", 0, kindVariable},
	TypeString:       {"string", 0, kindVariable},
	TypeBoolean:      {"boolean", 1, kindBool},
	TypeByte:         {"byte", 1, kindSigned},
	TypeUbyte:        {"unsignedByte", 1, kindUnsigned},
	TypeShort:        {"short", 2, kindSigned},
	TypeUshort:       {"unsignedShort", 2, kindUnsigned},
	TypeDateTime:     {"dateTime", 4, kindUnsigned},
	TypeDateTimeMsec: {"dateTimeMsec", 8, kindUnsigned},
	TypeIPv4Addr:     {"ipV4Addr", 4, kindUnsigned},
	TypeIPv6Addr:     {"ipV6Addr", 16, kindOctets},
	TypeIPAddr:       {"ipAddr", 0, kindVariable},
	TypeUUID:         {"UUID", 16, kindOctets},
	TypeDateTimeUsec: {"dateTimeUsec", 8, kindSigned},
	TypeMACAddress:   {"macAddress", 8, kindUnsigned},
}

// Wire type name, empty when unknown
func (t WireType) String() string { return wireTypes[t].name }

// Wire size in bytes, 0 for variable length types
func (t WireType) Size() int { return wireTypes[t].size }

// Reports whether the type is length prefixed
func (t WireType) Variable() bool {
	info, ok := wireTypes[t]
	return ok && info.kind == kindVariable
}

// Reports whether t is a known wire type
func (t WireType) Valid() bool {
	_, ok := wireTypes[t]
	return ok
}

// Looks up a wire type by its name
func ParseWireType(name string) (t WireType, ok bool) {
	for candidate, info := range wireTypes {
		if info.name == name {
			t, ok = candidate, true
			return
		}
	}
	return
}

// Application record handed to the encoder.
// Offset fields of fixed types read host-order values from Fixed at their
// offset. Offset fields of variable types read Var[offset].
// Ctx is passed through to accessors untouched.
type Record struct {
	Fixed []byte
	Var   [][]byte
	Ctx   any
}

// Typed field value. Which member is meaningful depends on the wire type:
// signed types use Int, unsigned Uint, float/double Float, boolean Bool,
// byte arrays and variable types Bytes.
type Value struct {
	Int   int64
	Uint  uint64
	Float float64
	Bool  bool
	Bytes []byte
}

// Callback returning a field value for one record
type Accessor func(rec Record) Value

// Template field. Offset fields leave Accessor nil.
type Field struct {
	ID       uint32
	Name     string
	Type     WireType
	Enabled  bool
	Offset   int
	Accessor Accessor
}

// Requested enabled state change for one field
type FieldChange struct {
	TemplateID uint16
	FieldID    uint32
	Enabled    bool
}

// Encoding strategy picked by Reset from field length and access homogeneity
type Strategy uint8

const (
	FixedOffset Strategy = iota
	FixedCallback
	FixedMixed
	VariableOffset
	VariableCallback
	VariableMixed
)

var strategyNames = [...]string{"fixed/offset", "fixed/callback", "fixed/mixed", "variable/offset", "variable/callback", "variable/mixed"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "invalid"
}

// Contiguous run of offset fields copied in one go, then swapped per field
type copyRegion struct {
	src    int // offset in Record.Fixed
	dst    int // offset in the record when static, otherwise unused
	length int
	swaps  []fieldSwap
}

type fieldSwap struct {
	at    int // offset inside the region
	width int // 2, 4 or 8
}

type opKind uint8

const (
	opRegion opKind = iota
	opFixedCallback
	opVarOffset
	opVarCallback
)

// One encoding step in declaration order
type op struct {
	kind     opKind
	region   copyRegion // opRegion
	field    *Field     // other kinds
	dst      int        // static output offset (fixed-only templates)
	varIndex int        // position among resolved variable fields
}

// Compiled schema for one record type
type Template struct {
	ID         uint16
	SchemaName string
	TypeName   string

	keys []*ownership.Ref[Field]

	// Derived by Reset
	fixedSize  int
	fixedImage int // smallest Record.Fixed covering all offset fields
	varFields  int
	ops        []op
	regions    int
	strategy   Strategy
}
