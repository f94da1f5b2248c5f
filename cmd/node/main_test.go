package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRunDryRunCreatesGenesisAndExitsZero(t *testing.T) {
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "chain.dat")
	addrPath := filepath.Join(dir, "peers.db")

	var out, errOut bytes.Buffer
	code := run([]string{
		"-dry-run",
		"-port", "0",
		"-chain", chainPath,
		"-addrbook", addrPath,
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", code, errOut.String())
	}
	if out.Len() == 0 {
		t.Fatalf("expected stdout output")
	}
	if _, err := os.Stat(chainPath); err != nil {
		t.Fatalf("expected chain file to be created: %v", err)
	}
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	code := run([]string{
		"-dry-run",
		"-port", "0",
		"-chain", filepath.Join(dir, "chain.dat"),
		"-addrbook", filepath.Join(dir, "peers.db"),
		"-log-level", "not-a-level",
	}, &out, &errOut)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRunRejectsCorruptChainFile(t *testing.T) {
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "chain.dat")
	if err := os.WriteFile(chainPath, []byte{0xff, 0xff, 0xff}, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out, errOut bytes.Buffer
	code := run([]string{
		"-dry-run",
		"-port", "0",
		"-chain", chainPath,
		"-addrbook", filepath.Join(dir, "peers.db"),
	}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d (stderr=%q)", code, errOut.String())
	}
}
