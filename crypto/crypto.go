// Package crypto provides the node's cryptographic primitives: content
// hashing, keypair generation, and digest signing/verification (§4.1).
//
// Hashing is plain SHA-256, as §3 mandates for entity identity. Signing uses
// BIP340-style Schnorr signatures over the secp256k1 curve
// (github.com/btcsuite/btcd/btcec/v2), which gives the 32-byte x-only public
// key and fixed-width 64-byte signature the data model assumes, without
// pulling in a scripting system.
package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Hash is a 32-byte SHA-256 digest (§3).
type Hash [32]byte

// PublicKey is a 32-byte opaque destination/signer identity (§3). It is the
// BIP340 x-only serialization of a secp256k1 point.
type PublicKey [32]byte

// Signature is the fixed-width 64-byte Schnorr signature over a 32-byte
// message digest (§3).
type Signature [64]byte

// PrivateKey is a secp256k1 scalar. It never crosses a serialization
// boundary except through the key-file format (§6).
type PrivateKey struct {
	key *btcec.PrivateKey
}

// Digest returns the SHA-256 digest of b (§3: "the hash of an entity is the
// SHA-256 of its canonical serialization").
func Digest(b []byte) Hash {
	return sha256.Sum256(b)
}

// GenerateKeypair produces a fresh secp256k1 keypair (§4.1).
func GenerateKeypair() (PrivateKey, PublicKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return PrivateKey{}, PublicKey{}, err
	}
	return PrivateKey{key: priv}, publicKeyFromPriv(priv), nil
}

// PrivateKeyFromBytes reconstructs a PrivateKey from its raw 32-byte scalar,
// as loaded from a key file (§6).
func PrivateKeyFromBytes(raw [32]byte) (PrivateKey, PublicKey) {
	priv, _ := btcec.PrivKeyFromBytes(raw[:])
	return PrivateKey{key: priv}, publicKeyFromPriv(priv)
}

// Bytes returns the raw 32-byte scalar for the key-file format (§6).
func (p PrivateKey) Bytes() [32]byte {
	if p.key == nil {
		return [32]byte{}
	}
	var out [32]byte
	b := p.key.Serialize()
	copy(out[:], b)
	return out
}

// PublicKey returns the public key derived from p.
func (p PrivateKey) PublicKey() PublicKey {
	return publicKeyFromPriv(p.key)
}

func publicKeyFromPriv(priv *btcec.PrivateKey) PublicKey {
	var out PublicKey
	copy(out[:], schnorr.SerializePubKey(priv.PubKey()))
	return out
}

// Sign signs a 32-byte message digest with the private key (§4.1).
func Sign(priv PrivateKey, digest Hash) (Signature, error) {
	if priv.key == nil {
		return Signature{}, errNilKey
	}
	sig, err := schnorr.Sign(priv.key, digest[:])
	if err != nil {
		return Signature{}, err
	}
	var out Signature
	copy(out[:], sig.Serialize())
	return out, nil
}

// Verify checks sig against digest under pub. It never panics or returns an
// error for malformed input — any such input simply fails to verify, and the
// underlying schnorr verification path runs in constant time with respect to
// the validity outcome (§4.1).
func Verify(pub PublicKey, digest Hash, sig Signature) bool {
	parsedPub, err := schnorr.ParsePubKey(pub[:])
	if err != nil {
		return false
	}
	parsedSig, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return parsedSig.Verify(digest[:], parsedPub)
}

var errNilKey = nilKeyError{}

type nilKeyError struct{}

func (nilKeyError) Error() string { return "crypto: nil private key" }
