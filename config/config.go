// Package config reads and writes engine configuration files in TOML.
// A configuration file lives in the engine home directory (pgpme.toml)
// and governs defaults the engine applies when the caller does not say
// otherwise.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file name inside an engine home dir.
const FileName = "pgpme.toml"

// Config is the engine configuration.
type Config struct {
	// Protocol is "openpgp" (default) or "cms".
	Protocol string `toml:"protocol"`
	// Armor makes ASCII-armored output the default.
	Armor bool `toml:"armor"`
	// HomeDir is the keyring directory. Defaults to the directory the
	// config was loaded from.
	HomeDir string       `toml:"home_dir,omitempty"`
	KeyGen  KeyGenConfig `toml:"keygen"`
}

// KeyGenConfig holds key generation defaults applied when a parameter
// block leaves them out.
type KeyGenConfig struct {
	// KeyType is the algorithm name, e.g. "rsa". Empty selects the
	// engine's default.
	KeyType string `toml:"key_type,omitempty"`
	// Bits is the RSA key size. Ignored for non-RSA types.
	Bits int `toml:"bits,omitempty"`
}

// Default returns a Config with the stock defaults for homeDir.
func Default(homeDir string) *Config {
	return &Config{
		Protocol: "openpgp",
		HomeDir:  homeDir,
		KeyGen: KeyGenConfig{
			KeyType: "rsa",
			Bits:    3072,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if cfg.HomeDir == "" {
		cfg.HomeDir = filepath.Dir(path)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path, creating the
// directory as needed.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path. It refuses
// to overwrite an existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
