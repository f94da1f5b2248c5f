// Package walletcfg loads and writes the wallet's TOML configuration file
// (§6: "path to a configuration file (toml key-value with entries:
// my_key_file, my_public_key_file, contacts [list of public keys with
// labels], node_address)").
package walletcfg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

// Contact pairs a human label with a public-key file on disk, so the wallet
// can address a transaction by name instead of a raw key.
type Contact struct {
	Label       string `toml:"label"`
	PublicKeyFile string `toml:"public_key_file"`
}

// Config is the wallet's full configuration file.
type Config struct {
	MyKeyFile       string    `toml:"my_key_file"`
	MyPublicKeyFile string    `toml:"my_public_key_file"`
	Contacts        []Contact `toml:"contacts"`
	NodeAddress     string    `toml:"node_address"`
}

// Default returns the template written by generate-config.
func Default() Config {
	return Config{
		MyKeyFile:       "wallet.key",
		MyPublicKeyFile: "wallet.pub",
		Contacts:        []Contact{{Label: "example", PublicKeyFile: "example.pub"}},
		NodeAddress:     "127.0.0.1:9000",
	}
}

// Load reads and parses a wallet configuration file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("walletcfg: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("walletcfg: parse %s: %w", path, err)
	}
	return cfg, nil
}

// GenerateDefault writes the default configuration template to path,
// refusing to overwrite an existing file.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("walletcfg: %s already exists", path)
	}
	raw, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("walletcfg: marshal default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("walletcfg: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("walletcfg: write %s: %w", path, err)
	}
	return nil
}
