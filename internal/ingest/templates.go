package ingest

import (
	"fmt"
	"ipdrexporter/internal/template"
)

// Builds a template whose fields read their value from the record's Values by name
func BuildTemplate(def TemplateDef) (tmpl *template.Template, err error) {
	tmpl = template.New(def.ID, def.Schema, def.Type)
	for _, field := range def.Fields {
		wire, ok := template.ParseWireType(field.Type)
		if !ok {
			err = fmt.Errorf("template %d field %q: %w: %q", def.ID, field.Name, template.ErrUnknownType, field.Type)
			return
		}
		err = tmpl.AddField(template.Field{
			ID:       field.ID,
			Name:     field.Name,
			Type:     wire,
			Enabled:  !field.Disabled,
			Accessor: namedAccessor(field.Name),
		})
		if err != nil {
			err = fmt.Errorf("template %d: %w", def.ID, err)
			return
		}
	}
	return
}

// Builds the template set for one session
func BuildSet(configID uint16, defs []TemplateDef) (set *template.Set, err error) {
	set = template.NewSet(configID)
	for _, def := range defs {
		var tmpl *template.Template
		tmpl, err = BuildTemplate(def)
		if err == nil {
			err = set.Add(tmpl)
		}
		if err != nil {
			set.Release()
			set = nil
			return
		}
	}
	return
}

// Adds a session's template definitions to the catalog
func (catalog Catalog) Add(sessionID uint8, defs []TemplateDef) (err error) {
	templates := make(map[uint16][]fieldType, len(defs))
	for _, def := range defs {
		fields := make([]fieldType, 0, len(def.Fields))
		for _, field := range def.Fields {
			wire, ok := template.ParseWireType(field.Type)
			if !ok {
				err = fmt.Errorf("session %d template %d field %q: %w: %q", sessionID, def.ID, field.Name, template.ErrUnknownType, field.Type)
				return
			}
			fields = append(fields, fieldType{name: field.Name, wire: wire})
		}
		templates[def.ID] = fields
	}
	catalog[sessionID] = templates
	return
}

func namedAccessor(name string) template.Accessor {
	return func(rec template.Record) template.Value {
		values, _ := rec.Ctx.(Values)
		return values[name]
	}
}
