// Package keyfile implements the on-disk key file format (§6): a magic byte
// followed by either a public key alone or a private key paired with its
// public key.
package keyfile

import (
	"fmt"
	"os"
	"path/filepath"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/crypto"
)

const (
	magicPublicOnly byte = 0x01
	magicPrivate    byte = 0x02
)

// Load reads a key file, returning the public key and, when present, the
// private key. priv.IsZero-equivalent behavior: ok reports whether a private
// key was present.
func Load(path string) (priv crypto.PrivateKey, pub crypto.PublicKey, ok bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return crypto.PrivateKey{}, crypto.PublicKey{}, false, fmt.Errorf("keyfile: read %s: %w", path, err)
	}
	switch {
	case len(raw) == 1+32 && raw[0] == magicPublicOnly:
		copy(pub[:], raw[1:])
		return crypto.PrivateKey{}, pub, false, nil
	case len(raw) == 1+32+32 && raw[0] == magicPrivate:
		var rawPriv [32]byte
		copy(rawPriv[:], raw[1:33])
		copy(pub[:], raw[33:])
		priv, derivedPub := crypto.PrivateKeyFromBytes(rawPriv)
		if derivedPub != pub {
			return crypto.PrivateKey{}, crypto.PublicKey{}, false, chainerr.New(chainerr.Malformed, "keyfile: public key does not match private key")
		}
		return priv, pub, true, nil
	default:
		return crypto.PrivateKey{}, crypto.PublicKey{}, false, chainerr.New(chainerr.Malformed, "keyfile: unrecognized key file")
	}
}

// SavePublic writes a public-key-only key file, atomically.
func SavePublic(path string, pub crypto.PublicKey) error {
	raw := make([]byte, 0, 1+32)
	raw = append(raw, magicPublicOnly)
	raw = append(raw, pub[:]...)
	return writeAtomic(path, raw)
}

// SavePrivate writes a private+public key file, atomically.
func SavePrivate(path string, priv crypto.PrivateKey, pub crypto.PublicKey) error {
	privBytes := priv.Bytes()
	raw := make([]byte, 0, 1+32+32)
	raw = append(raw, magicPrivate)
	raw = append(raw, privBytes[:]...)
	raw = append(raw, pub[:]...)
	return writeAtomic(path, raw)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("keyfile: mkdir %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("keyfile: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("keyfile: rename %s: %w", path, err)
	}
	return nil
}
