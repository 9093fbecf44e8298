package bufpool

import (
	"ipdrexporter/internal/params"
	"testing"
)

func TestConfigFromParams(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		check  func(t *testing.T, config Config)
	}{
		{
			name:   "defaults",
			values: nil,
			check: func(t *testing.T, config Config) {
				if config.ChunkSize != DefaultChunkSize || config.InitialChunks != DefaultInitialChunks || config.MemoryCap != 0 {
					t.Fatalf("unexpected defaults %+v", config)
				}
			},
		},
		{
			name:   "explicit values",
			values: map[string]string{params.KeyChunkSize: "4096", params.KeyMemoryCap: "65536", params.KeyMemoryCapDivisor: "2"},
			check: func(t *testing.T, config Config) {
				if config.ChunkSize != 4096 || config.MemoryCap != 65536 {
					t.Fatalf("unexpected config %+v", config)
				}
			},
		},
		{
			name:   "cap from host memory",
			values: map[string]string{params.KeyMemoryCapDivisor: "4"},
			check: func(t *testing.T, config Config) {
				if config.MemoryCap == 0 {
					t.Fatalf("expected a derived memory cap")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ConfigFromParams(params.NewTable(tt.values)))
		})
	}
}
