package exporter

import (
	"fmt"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/ownership"
	"ipdrexporter/internal/retransmit"
	"ipdrexporter/internal/template"
	"strconv"
)

// Builds the pool, queue and encoder for one session around set.
// The context takes ownership of set.
func NewTransmissionContext(sessionID uint8, poolConfig bufpool.Config, set *template.Set) (tc *TransmissionContext, err error) {
	if set == nil {
		err = fmt.Errorf("session %d: template set required", sessionID)
		return
	}

	namespace := []string{global.NSExport, global.NSSession, strconv.Itoa(int(sessionID))}
	if poolConfig.Namespace == nil {
		poolConfig.Namespace = namespace
	}

	pool, err := bufpool.New(poolConfig)
	if err != nil {
		err = fmt.Errorf("session %d: failed to create buffer pool: %w", sessionID, err)
		return
	}

	tc = &TransmissionContext{
		Templates: set,
		Pool:      pool,
		Queue:     retransmit.New(pool, namespace),
		Encoder:   template.NewEncoder(pool),
	}
	return
}

// Releases everything the context owns. Returns the number of queued
// messages that were dropped.
func (tc *TransmissionContext) teardown() (dropped int) {
	if tc.Queue != nil {
		dropped = tc.Queue.RemoveAll()
	}
	if tc.Templates != nil {
		tc.Templates.Release()
		tc.Templates = nil
	}
	if tc.Pool != nil {
		tc.Pool.Close()
	}
	return
}

// Replaces the template set, releasing the old one
func (tc *TransmissionContext) swapTemplates(next *template.Set) {
	previous := tc.Templates
	tc.Templates = next
	if previous != nil {
		previous.Release()
	}
}

func newContextRef(tc *TransmissionContext) (ref *ownership.Ref[TransmissionContext]) {
	ref = ownership.New(tc, func(tc *TransmissionContext) { tc.teardown() })
	return
}
