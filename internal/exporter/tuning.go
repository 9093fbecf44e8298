package exporter

import (
	"ipdrexporter/internal/params"
	"ipdrexporter/pkg/protocol"
	"time"
)

const (
	DefaultKeepAliveInterval   time.Duration = 30 * time.Second
	DefaultResponseTimeout     time.Duration = 10 * time.Second
	DefaultTemplateAckTimeout  time.Duration = 10 * time.Second
	DefaultReconnectInterval   time.Duration = 5 * time.Second
	DefaultWindowSize          int           = 1024
	DefaultAckTimeInterval     time.Duration = time.Second
	DefaultAckSequenceInterval uint32        = 64
	DefaultVendorID            string        = "ipdrexporter"
)

// Reads session tuning from a parameter source, falling back to defaults
func TuningFromParams(source params.Source) (tuning Tuning) {
	tuning = Tuning{
		KeepAliveInterval:   params.Duration(source, params.KeyKeepAliveInterval, DefaultKeepAliveInterval),
		ResponseTimeout:     params.Duration(source, params.KeyResponseTimeout, DefaultResponseTimeout),
		TemplateAckTimeout:  params.Duration(source, params.KeyTemplateAckTimeout, DefaultTemplateAckTimeout),
		ReconnectInterval:   params.Duration(source, params.KeyReconnectInterval, DefaultReconnectInterval),
		WindowSize:          params.Int(source, params.KeyWindowSize, DefaultWindowSize),
		AckTimeInterval:     params.Duration(source, params.KeyAckTimeInterval, DefaultAckTimeInterval),
		AckSequenceInterval: uint32(params.Uint64(source, params.KeyAckSequenceInterval, uint64(DefaultAckSequenceInterval))),
		Capabilities:        protocol.CapStructures | protocol.CapMultiSession | protocol.CapTemplateNegot,
		VendorID:            DefaultVendorID,
	}
	tuning.setDefaults()
	return
}

// Replaces unusable values
func (tuning *Tuning) setDefaults() {
	if tuning.KeepAliveInterval <= 0 {
		tuning.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if tuning.ResponseTimeout <= 0 {
		tuning.ResponseTimeout = DefaultResponseTimeout
	}
	if tuning.TemplateAckTimeout <= 0 {
		tuning.TemplateAckTimeout = DefaultTemplateAckTimeout
	}
	if tuning.ReconnectInterval <= 0 {
		tuning.ReconnectInterval = DefaultReconnectInterval
	}
	if tuning.WindowSize < 0 {
		tuning.WindowSize = 0
	}
	if tuning.VendorID == "" {
		tuning.VendorID = DefaultVendorID
	}
}
