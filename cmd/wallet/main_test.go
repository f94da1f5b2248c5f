package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"tenet.dev/node/crypto"
	"tenet.dev/node/keyfile"
	"tenet.dev/node/walletcfg"
)

func TestRunGenerateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.toml")
	var out, errOut bytes.Buffer
	code := run([]string{path, "generate-config"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", code, errOut.String())
	}
	if _, err := walletcfg.Load(path); err != nil {
		t.Fatalf("expected a loadable config, got error: %v", err)
	}
}

func TestResolveRecipientByContactLabel(t *testing.T) {
	dir := t.TempDir()
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pubPath := filepath.Join(dir, "alice.pub")
	if err := keyfile.SavePublic(pubPath, pub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := walletcfg.Config{Contacts: []walletcfg.Contact{{Label: "alice", PublicKeyFile: pubPath}}}

	got, err := resolveRecipient(cfg, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != pub {
		t.Fatalf("resolved public key mismatch")
	}
}

func TestComposeTransactionSignsAllInputs(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hash := crypto.Hash{0x01, 0x02}
	spec := "0102000000000000000000000000000000000000000000000000000000000000:0"
	tx, err := composeTransaction(priv, pub, 100, []string{spec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tx.Inputs) != 1 || tx.Inputs[0].PrevTxHash != hash {
		t.Fatalf("unexpected inputs: %+v", tx.Inputs)
	}
	if len(tx.Outputs) != 1 || tx.Outputs[0].Amount != 100 || tx.Outputs[0].Recipient != pub {
		t.Fatalf("unexpected outputs: %+v", tx.Outputs)
	}
	if tx.Inputs[0].Signature == (crypto.Signature{}) {
		t.Fatalf("expected a non-zero signature")
	}
}

func TestRunRejectsMissingFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wallet.toml")
	if err := walletcfg.GenerateDefault(cfgPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out, errOut bytes.Buffer
	code := run([]string{cfgPath}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
