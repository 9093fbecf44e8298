package template

import "fmt"

// Encoded record length for rec. Variable field values are resolved
// into vars, which must hold at least varFields entries.
func (tmpl *Template) recordLength(rec Record, vars [][]byte) (length int, err error) {
	if len(rec.Fixed) < tmpl.fixedImage {
		err = fmt.Errorf("%w: record image of %d bytes, offsets need %d", ErrRecordMismatch, len(rec.Fixed), tmpl.fixedImage)
		return
	}

	length = tmpl.fixedSize
	if tmpl.strategy < VariableOffset {
		return
	}
	for i := range tmpl.ops {
		o := &tmpl.ops[i]
		switch o.kind {
		case opVarOffset:
			if o.field.Offset >= len(rec.Var) {
				err = fmt.Errorf("%w: variable slot %d missing for %q", ErrRecordMismatch, o.field.Offset, o.field.Name)
				return
			}
			vars[o.varIndex] = rec.Var[o.field.Offset]
		case opVarCallback:
			vars[o.varIndex] = o.field.Accessor(rec).Bytes
		default:
			continue
		}
		length += 4 + len(vars[o.varIndex])
	}
	return
}

// Writes the record fields into dst, which holds exactly the record length
func (tmpl *Template) writeRecord(dst []byte, rec Record, vars [][]byte) {
	switch tmpl.strategy {
	case FixedOffset:
		for i := range tmpl.ops {
			region := &tmpl.ops[i].region
			writeRegion(dst[region.dst:], region, rec.Fixed)
		}
	case FixedCallback:
		for i := range tmpl.ops {
			o := &tmpl.ops[i]
			writeFixed(dst[o.dst:], o.field.Type, o.field.Accessor(rec))
		}
	case FixedMixed:
		for i := range tmpl.ops {
			o := &tmpl.ops[i]
			if o.kind == opRegion {
				writeRegion(dst[o.region.dst:], &o.region, rec.Fixed)
			} else {
				writeFixed(dst[o.dst:], o.field.Type, o.field.Accessor(rec))
			}
		}
	case VariableOffset:
		cursor := 0
		for i := range tmpl.ops {
			o := &tmpl.ops[i]
			if o.kind == opRegion {
				writeRegion(dst[cursor:], &o.region, rec.Fixed)
				cursor += o.region.length
			} else {
				cursor += writeVariable(dst[cursor:], vars[o.varIndex])
			}
		}
	case VariableCallback:
		cursor := 0
		for i := range tmpl.ops {
			o := &tmpl.ops[i]
			if o.kind == opFixedCallback {
				writeFixed(dst[cursor:], o.field.Type, o.field.Accessor(rec))
				cursor += o.field.Type.Size()
			} else {
				cursor += writeVariable(dst[cursor:], vars[o.varIndex])
			}
		}
	default:
		cursor := 0
		for i := range tmpl.ops {
			o := &tmpl.ops[i]
			switch o.kind {
			case opRegion:
				writeRegion(dst[cursor:], &o.region, rec.Fixed)
				cursor += o.region.length
			case opFixedCallback:
				writeFixed(dst[cursor:], o.field.Type, o.field.Accessor(rec))
				cursor += o.field.Type.Size()
			default:
				cursor += writeVariable(dst[cursor:], vars[o.varIndex])
			}
		}
	}
}

// Reference encoder writing one field at a time without regions or
// strategy specialisation
func (tmpl *Template) writeGeneric(dst []byte, rec Record) (written int) {
	for _, key := range tmpl.keys {
		field := key.Get()
		if !field.Enabled {
			continue
		}
		accessor := field.Accessor
		if accessor == nil {
			accessor = HostAccessor(field.Offset, field.Type)
		}
		value := accessor(rec)
		if field.Type.Variable() {
			written += writeVariable(dst[written:], value.Bytes)
			continue
		}
		writeFixed(dst[written:], field.Type, value)
		written += field.Type.Size()
	}
	return
}

// Appends the encoded record for rec to dst
func (tmpl *Template) AppendRecord(dst []byte, rec Record) (out []byte, err error) {
	vars := make([][]byte, tmpl.varFields)
	length, err := tmpl.recordLength(rec, vars)
	if err != nil {
		return
	}
	out = append(dst, make([]byte, length)...)
	tmpl.writeRecord(out[len(dst):], rec, vars)
	return
}
