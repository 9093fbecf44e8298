// Schema engine compiling a field list into a binary record encoder
package template

import (
	"fmt"
	"ipdrexporter/internal/ownership"
	"ipdrexporter/pkg/protocol"
)

// Creates new empty template
func New(id uint16, schemaName, typeName string) (tmpl *Template) {
	tmpl = &Template{
		ID:         id,
		SchemaName: schemaName,
		TypeName:   typeName,
	}
	tmpl.Reset()
	return
}

// Appends a field. Field ids and names must be unique within the template.
func (tmpl *Template) AddField(field Field) (err error) {
	if !field.Type.Valid() {
		err = fmt.Errorf("%w: 0x%x for field %q", ErrUnknownType, uint32(field.Type), field.Name)
		return
	}
	if field.Name == "" || field.Offset < 0 {
		err = fmt.Errorf("%w: field id %d needs a name and a non-negative offset", ErrInvalidField, field.ID)
		return
	}
	for _, key := range tmpl.keys {
		existing := key.Get()
		if existing.ID == field.ID {
			err = fmt.Errorf("%w: id %d already used by %q", ErrDuplicateField, field.ID, existing.Name)
			return
		}
		if existing.Name == field.Name {
			err = fmt.Errorf("%w: name %q already used by id %d", ErrDuplicateField, field.Name, existing.ID)
			return
		}
	}

	stored := field
	tmpl.keys = append(tmpl.keys, ownership.New(&stored, nil))
	tmpl.Reset()
	return
}

// Re-derives fixed size, copy regions and strategy from the field list
func (tmpl *Template) Reset() {
	tmpl.fixedSize = 0
	tmpl.varFields = 0
	tmpl.regions = 0
	tmpl.fixedImage = 0
	tmpl.ops = tmpl.ops[:0]

	var offsets, callbacks int
	for _, key := range tmpl.keys {
		field := key.Get()
		if !field.Enabled {
			continue
		}
		if field.Accessor == nil {
			offsets++
		} else {
			callbacks++
		}

		if field.Type.Variable() {
			kind := opVarOffset
			if field.Accessor != nil {
				kind = opVarCallback
			}
			tmpl.ops = append(tmpl.ops, op{kind: kind, field: field, varIndex: tmpl.varFields})
			tmpl.varFields++
			continue
		}

		size := field.Type.Size()
		if field.Accessor != nil {
			tmpl.ops = append(tmpl.ops, op{kind: opFixedCallback, field: field, dst: tmpl.fixedSize})
			tmpl.fixedSize += size
			continue
		}

		// Merge with the previous region when the source bytes continue it
		last := len(tmpl.ops) - 1
		if last >= 0 && tmpl.ops[last].kind == opRegion &&
			tmpl.ops[last].region.src+tmpl.ops[last].region.length == field.Offset {
			region := &tmpl.ops[last].region
			region.swaps = appendSwap(region.swaps, field.Type, region.length)
			region.length += size
		} else {
			tmpl.ops = append(tmpl.ops, op{
				kind: opRegion,
				region: copyRegion{
					src:    field.Offset,
					dst:    tmpl.fixedSize,
					length: size,
					swaps:  appendSwap(nil, field.Type, 0),
				},
			})
			tmpl.regions++
		}
		tmpl.fixedImage = max(tmpl.fixedImage, field.Offset+size)
		tmpl.fixedSize += size
	}

	access := 0 // offset
	if callbacks > 0 && offsets == 0 {
		access = 1
	} else if callbacks > 0 {
		access = 2
	}
	tmpl.strategy = Strategy(access)
	if tmpl.varFields > 0 {
		tmpl.strategy += VariableOffset
	}
}

// Records the byte swap a numeric field needs inside a region
func appendSwap(swaps []fieldSwap, t WireType, at int) []fieldSwap {
	info := wireTypes[t]
	switch info.kind {
	case kindSigned, kindUnsigned, kindFloat:
		if info.size > 1 {
			swaps = append(swaps, fieldSwap{at: at, width: info.size})
		}
	}
	return swaps
}

// Borrowed field list in declaration order
func (tmpl *Template) Fields() (fields []*Field) {
	fields = make([]*Field, 0, len(tmpl.keys))
	for _, key := range tmpl.keys {
		fields = append(fields, key.Get())
	}
	return
}

// Field by id, nil when absent
func (tmpl *Template) Field(id uint32) (field *Field) {
	for _, key := range tmpl.keys {
		if key.Get().ID == id {
			field = key.Get()
			return
		}
	}
	return
}

// Encoded size of the fixed length fields
func (tmpl *Template) FixedSize() int { return tmpl.fixedSize }

// Strategy chosen at the last Reset
func (tmpl *Template) Strategy() Strategy { return tmpl.strategy }

// Number of merged copy regions
func (tmpl *Template) CopyRegions() int { return tmpl.regions }

// Copy of the template where the given fields change enabled state.
// Untouched fields are shared with the receiver.
func (tmpl *Template) withChanges(changes map[uint32]bool) (next *Template) {
	next = &Template{
		ID:         tmpl.ID,
		SchemaName: tmpl.SchemaName,
		TypeName:   tmpl.TypeName,
		keys:       make([]*ownership.Ref[Field], 0, len(tmpl.keys)),
	}
	for _, key := range tmpl.keys {
		field := key.Get()
		enabled, changed := changes[field.ID]
		if !changed || enabled == field.Enabled {
			next.keys = append(next.keys, key.Dup())
			continue
		}
		modified := *field
		modified.Enabled = enabled
		next.keys = append(next.keys, ownership.New(&modified, nil))
	}
	next.Reset()
	return
}

// Drops this template's field references
func (tmpl *Template) release() {
	for _, key := range tmpl.keys {
		key.Release()
	}
	tmpl.keys = nil
	tmpl.ops = nil
}

// Template data block as announced to collectors
func (tmpl *Template) Block() (block protocol.TemplateBlock) {
	block = protocol.TemplateBlock{
		TemplateID: tmpl.ID,
		SchemaName: tmpl.SchemaName,
		TypeName:   tmpl.TypeName,
		Fields:     make([]protocol.FieldDescriptor, 0, len(tmpl.keys)),
	}
	for _, key := range tmpl.keys {
		field := key.Get()
		block.Fields = append(block.Fields, protocol.FieldDescriptor{
			TypeID:  uint32(field.Type),
			FieldID: field.ID,
			Name:    field.Name,
			Enabled: field.Enabled,
		})
	}
	return
}
