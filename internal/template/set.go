package template

import (
	"fmt"
	"ipdrexporter/internal/ownership"
	"ipdrexporter/pkg/protocol"
)

// Template set negotiated under one configuration id.
// Templates are shared between successive sets by reference count.
type Set struct {
	ConfigID  uint16
	templates []*ownership.Ref[Template]
}

// Creates new empty set
func NewSet(configID uint16) (set *Set) {
	set = &Set{ConfigID: configID}
	return
}

// Adds a template. The set takes ownership of tmpl.
func (set *Set) Add(tmpl *Template) (err error) {
	if set.Get(tmpl.ID) != nil {
		err = fmt.Errorf("%w: id %d", ErrDuplicateTemplate, tmpl.ID)
		return
	}
	set.templates = append(set.templates, ownership.New(tmpl, (*Template).release))
	return
}

// Template by id, nil when absent
func (set *Set) Get(id uint16) (tmpl *Template) {
	for _, ref := range set.templates {
		if ref.Get().ID == id {
			tmpl = ref.Get()
			return
		}
	}
	return
}

// Templates in insertion order
func (set *Set) Templates() (list []*Template) {
	list = make([]*Template, 0, len(set.templates))
	for _, ref := range set.templates {
		list = append(list, ref.Get())
	}
	return
}

// Builds the next configuration with the given enabled state changes.
// Every change must name an existing template and field, otherwise nothing
// is applied. Templates without changes are shared with the receiver.
func (set *Set) Modify(changes []FieldChange) (next *Set, err error) {
	perTemplate := make(map[uint16]map[uint32]bool)
	for _, change := range changes {
		tmpl := set.Get(change.TemplateID)
		if tmpl == nil {
			err = fmt.Errorf("%w: template %d", ErrUnknownTemplate, change.TemplateID)
			return
		}
		if tmpl.Field(change.FieldID) == nil {
			err = fmt.Errorf("%w: id %d in template %d", ErrUnknownField, change.FieldID, change.TemplateID)
			return
		}
		if perTemplate[change.TemplateID] == nil {
			perTemplate[change.TemplateID] = make(map[uint32]bool)
		}
		perTemplate[change.TemplateID][change.FieldID] = change.Enabled
	}

	next = NewSet(set.ConfigID + 1)
	for _, ref := range set.templates {
		tmpl := ref.Get()
		fieldChanges, ok := perTemplate[tmpl.ID]
		if !ok {
			next.templates = append(next.templates, ref.Dup())
			continue
		}
		next.templates = append(next.templates, ownership.New(tmpl.withChanges(fieldChanges), (*Template).release))
	}
	return
}

// Drops the set's template references
func (set *Set) Release() {
	for _, ref := range set.templates {
		ref.Release()
	}
	set.templates = nil
}

// Template data blocks for TEMPLATE_DATA and related messages
func (set *Set) Blocks() (blocks []protocol.TemplateBlock) {
	blocks = make([]protocol.TemplateBlock, 0, len(set.templates))
	for _, ref := range set.templates {
		blocks = append(blocks, ref.Get().Block())
	}
	return
}

// Enabled state changes requested by template blocks from a collector
func ChangesFromBlocks(blocks []protocol.TemplateBlock) (changes []FieldChange) {
	for _, block := range blocks {
		for _, field := range block.Fields {
			changes = append(changes, FieldChange{
				TemplateID: block.TemplateID,
				FieldID:    field.FieldID,
				Enabled:    field.Enabled,
			})
		}
	}
	return
}
