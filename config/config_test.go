package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default("/tmp/home")
	if cfg.Protocol != "openpgp" {
		t.Errorf("Protocol = %q, want openpgp", cfg.Protocol)
	}
	if cfg.HomeDir != "/tmp/home" {
		t.Errorf("HomeDir = %q", cfg.HomeDir)
	}
	if cfg.KeyGen.KeyType != "rsa" || cfg.KeyGen.Bits != 3072 {
		t.Errorf("KeyGen = %+v, want rsa/3072", cfg.KeyGen)
	}
}

func TestReadWrite(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Protocol: "openpgp",
		Armor:    true,
		HomeDir:  "/keys",
		KeyGen:   KeyGenConfig{KeyType: "x25519"},
	}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Protocol != cfg.Protocol || got.Armor != cfg.Armor || got.HomeDir != cfg.HomeDir {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
	if got.KeyGen.KeyType != "x25519" {
		t.Errorf("KeyGen.KeyType = %q", got.KeyGen.KeyType)
	}
}

func TestReadInvalid(t *testing.T) {
	t.Parallel()

	if _, err := (&Manager{}).Read(strings.NewReader("protocol = [broken")); err == nil {
		t.Error("Read of malformed TOML succeeded")
	}
}

func TestReadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := "protocol = \"openpgp\"\narmor = true\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile: %v", err)
	}
	if !cfg.Armor {
		t.Error("Armor not read")
	}
	// HomeDir defaults to the config file's directory.
	if cfg.HomeDir != dir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, dir)
	}

	if _, err := ReadFromFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("ReadFromFile of missing file succeeded")
	}
}

func TestInit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", FileName)
	if err := Init(path, Default(filepath.Dir(path))); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	// Refuses to overwrite.
	if err := Init(path, Default(filepath.Dir(path))); err == nil {
		t.Error("Init overwrote an existing config")
	}
}
