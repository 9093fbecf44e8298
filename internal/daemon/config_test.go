package daemon

import (
	"encoding/json"
	"errors"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/seal"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseConfig string = `{
	"peers": [
		{"name": "primary", "address": "192.0.2.10"},
		{"name": "backup", "address": "192.0.2.11", "port": 5000}
	],
	"sessions": [
		{
			"id": 1,
			"templates": [{"id": 1, "fields": [{"id": 1, "name": "octets", "type": "unsignedLong"}]}],
			"bindings": [{"peer": "primary", "priority": 5}, {"peer": "backup", "priority": 10}]
		}
	],
	"metrics": {"collectionInterval": "30s"},
	"parameters": {"session.windowSize": "128"}
}`

func parseConfig(t *testing.T, text string) (cfg JSONConfig) {
	t.Helper()
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		t.Fatalf("bad test config: %v", err)
	}
	return
}

func TestNewDaemonConf(t *testing.T) {
	cfg := parseConfig(t, baseConfig)
	config, err := cfg.NewDaemonConf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(config.Peers) != 2 || config.Peers[0].Port != uint16(global.DefaultCollectorPort) || config.Peers[1].Port != 5000 {
		t.Fatalf("unexpected peers %+v", config.Peers)
	}
	if len(config.Sessions) != 1 || config.Sessions[0].Name != "session-1" || len(config.Sessions[0].Bindings) != 2 {
		t.Fatalf("unexpected sessions %+v", config.Sessions)
	}
	if config.MetricCollectionInterval != 30*time.Second || config.MetricMaxAge != global.DefaultMetricRetention {
		t.Fatalf("unexpected metric settings %v %v", config.MetricCollectionInterval, config.MetricMaxAge)
	}
	if config.InputPath != "-" || config.StreamTag != global.ProgBaseName {
		t.Fatalf("defaults not applied: %q %q", config.InputPath, config.StreamTag)
	}
	if config.Parameters["session.windowSize"] != "128" {
		t.Fatalf("parameters not carried: %v", config.Parameters)
	}
	if keys := config.sealKeys(); len(keys) != 0 {
		t.Fatalf("expected no seal keys, got %d", len(keys))
	}
}

func TestNewDaemonConfRejects(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(cfg *JSONConfig)
		expect error
		text   string
	}{
		{
			name:   "no peers",
			edit:   func(cfg *JSONConfig) { cfg.Peers = nil },
			expect: ErrNoPeers,
		},
		{
			name:   "no sessions",
			edit:   func(cfg *JSONConfig) { cfg.Sessions = nil },
			expect: ErrNoSessions,
		},
		{
			name:   "duplicate peer",
			edit:   func(cfg *JSONConfig) { cfg.Peers[1].Name = "primary" },
			expect: ErrDuplicateName,
		},
		{
			name:   "unknown binding peer",
			edit:   func(cfg *JSONConfig) { cfg.Sessions[0].Bindings[1].Peer = "elsewhere" },
			expect: ErrUnknownPeer,
		},
		{
			name:   "bad public key",
			edit:   func(cfg *JSONConfig) { cfg.Peers[0].PublicKey = "c2hvcnQ=" },
			expect: seal.ErrBadKey,
		},
		{
			name: "bad duration",
			edit: func(cfg *JSONConfig) { cfg.Metrics.Interval = "soon" },
			text: "collection interval",
		},
		{
			name: "missing private key file",
			edit: func(cfg *JSONConfig) { cfg.PrivateKeyFile = filepath.Join(t.TempDir(), "absent.key") },
			text: "private key file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parseConfig(t, baseConfig)
			tt.edit(&cfg)
			_, err := cfg.NewDaemonConf()
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.expect != nil && !errors.Is(err, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, err)
			}
			if tt.text != "" && !strings.Contains(err.Error(), tt.text) {
				t.Fatalf("expected error mentioning %q, got %v", tt.text, err)
			}
		})
	}
}

func TestSealKeysFromConfig(t *testing.T) {
	private, public, err := seal.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyFile := filepath.Join(t.TempDir(), "exporter.key")
	if err := os.WriteFile(keyFile, []byte(seal.EncodeKey(private)+"\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	cfg := parseConfig(t, baseConfig)
	cfg.Peers[1].PublicKey = seal.EncodeKey(public)
	cfg.PrivateKeyFile = keyFile

	config, err := cfg.NewDaemonConf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.PrivateKey) != seal.KeyLen {
		t.Fatalf("private key not loaded")
	}
	keys := config.sealKeys()
	if len(keys) != 1 || string(keys[seal.Endpoint("192.0.2.11", 5000)]) != string(public) {
		t.Fatalf("unexpected seal keys %v", keys)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(good, []byte(baseConfig), 0o600)
	os.WriteFile(bad, []byte("{"), 0o600)

	if _, err := LoadConfig(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatalf("expected syntax error")
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}
