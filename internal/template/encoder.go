package template

import (
	"fmt"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/pkg/protocol"
)

// Writes DATA messages straight into a buffer pool
type Encoder struct {
	pool *bufpool.Pool
	vars [][]byte // resolved variable field values, reused across records
}

// Creates new encoder allocating from pool
func NewEncoder(pool *bufpool.Pool) (encoder *Encoder) {
	encoder = &Encoder{pool: pool}
	return
}

// Encodes rec against tmpl as a complete DATA message in the pool.
// The returned handle covers exactly the message.
func (encoder *Encoder) Encode(tmpl *Template, configID uint16, sessionID uint8, dsn uint64, rec Record) (handle bufpool.Handle, err error) {
	if cap(encoder.vars) < tmpl.varFields {
		encoder.vars = make([][]byte, tmpl.varFields)
	}
	vars := encoder.vars[:tmpl.varFields]
	defer clear(vars)

	recordLen, err := tmpl.recordLength(rec, vars)
	if err != nil {
		err = fmt.Errorf("template %d: %w", tmpl.ID, err)
		return
	}

	msgLen := protocol.DataMessageLength(recordLen)
	handle, err = encoder.pool.Allocate(msgLen)
	if err != nil {
		err = fmt.Errorf("failed to allocate %d byte message: %w", msgLen, err)
		return
	}

	msg := encoder.pool.Bytes(handle, msgLen)
	protocol.PutDataHeaders(msg, sessionID, protocol.DataHeader{
		TemplateID: tmpl.ID,
		ConfigID:   configID,
		DSN:        dsn,
	}, recordLen)
	tmpl.writeRecord(msg[protocol.DataRecordOffset:], rec, vars)
	return
}
