package bufpool

import "ipdrexporter/internal/params"

// Reads pool sizing from a parameter source. An explicit memory cap wins
// over a cap derived from host memory.
func ConfigFromParams(source params.Source) (config Config) {
	config = Config{
		ChunkSize:     params.Int(source, params.KeyChunkSize, DefaultChunkSize),
		InitialChunks: params.Int(source, params.KeyInitialChunks, DefaultInitialChunks),
		GrowthFactor:  params.Int(source, params.KeyGrowthFactor, DefaultGrowthFactor),
		MinMessage:    params.Int(source, params.KeyMinMessage, DefaultMinMessage),
		MemoryCap:     params.Uint64(source, params.KeyMemoryCap, 0),
	}
	if config.MemoryCap == 0 {
		divisor := params.Uint64(source, params.KeyMemoryCapDivisor, 0)
		if divisor > 0 {
			config.MemoryCap = SystemMemoryCap(divisor)
		}
	}
	return
}
