package walletcfg

import (
	"path/filepath"
	"testing"
)

func TestGenerateDefaultThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.toml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NodeAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected node address: %q", cfg.NodeAddress)
	}
	if len(cfg.Contacts) != 1 || cfg.Contacts[0].Label != "example" {
		t.Fatalf("unexpected contacts: %+v", cfg.Contacts)
	}
}

func TestGenerateDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.toml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := GenerateDefault(path); err == nil {
		t.Fatalf("expected error on second generate-config call")
	}
}
