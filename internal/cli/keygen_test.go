package cli

import (
	"io/fs"
	"ipdrexporter/internal/seal"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteKeyPairToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.key")
	if err := writeKeyPair(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != fs.FileMode(0o600) {
		t.Fatalf("private key readable by others: %v", info.Mode().Perm())
	}

	text, _ := os.ReadFile(path)
	if _, err := seal.ParseKey(string(text)); err != nil {
		t.Fatalf("written key does not parse: %v", err)
	}
}

func TestWriteKeyPairBadPath(t *testing.T) {
	if err := writeKeyPair(filepath.Join(t.TempDir(), "missing", "exporter.key")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
