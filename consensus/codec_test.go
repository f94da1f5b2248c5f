package consensus

import (
	"testing"

	"tenet.dev/node/crypto"
)

func mustBlock(t *testing.T) Block {
	t.Helper()
	coinbase := NewCoinbase(0, BaseReward, crypto.PublicKey{0x01, 0x02})
	spend := Transaction{
		Inputs:  []TxInput{{PrevTxHash: crypto.Hash{0xaa}, OutputIndex: 1, Signature: crypto.Signature{0xbb}}},
		Outputs: []TxOutput{{Amount: 5, Recipient: crypto.PublicKey{0x03}}},
	}
	txs := []Transaction{coinbase, spend}
	h := BlockHeader{
		PrevBlockHash: crypto.Hash{0x01},
		MerkleRoot:    MerkleRoot(txs),
		Timestamp:     1234,
		Target:        GenesisTarget,
		Nonce:         99,
	}
	return Block{Header: h, Transactions: txs}
}

func TestBlock_RoundTrip(t *testing.T) {
	b := mustBlock(t)
	encoded := SerializeBlock(b)
	decoded, err := ParseBlock(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if SerializeBlock(decoded) == nil {
		t.Fatalf("nil re-encode")
	}
	if string(SerializeBlock(decoded)) != string(encoded) {
		t.Fatalf("round-trip mismatch: serialize(decode(serialize(b))) != serialize(b)")
	}
}

func TestParseBlock_RejectsTrailingGarbage(t *testing.T) {
	b := mustBlock(t)
	encoded := append(SerializeBlock(b), 0xff)
	if _, err := ParseBlock(encoded); err == nil {
		t.Fatalf("expected rejection of trailing garbage")
	}
}

func TestParseBlock_RejectsTruncated(t *testing.T) {
	b := mustBlock(t)
	encoded := SerializeBlock(b)
	for cut := 0; cut < 32; cut++ {
		if _, err := ParseBlock(encoded[:len(encoded)-cut-1]); err == nil {
			t.Fatalf("expected rejection of truncated input at cut=%d", cut)
		}
	}
}

func TestParseTransaction_RejectsHugeSeqLen(t *testing.T) {
	// A tiny buffer claiming a huge input count must fail fast rather than
	// attempt a giant allocation.
	w := writerWithU32(0xffffffff)
	if _, err := ParseTransaction(w); err == nil {
		t.Fatalf("expected rejection of an oversized sequence length")
	}
}

func writerWithU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestSigningDigestBytes_ZeroesSignatures(t *testing.T) {
	tx := Transaction{
		Inputs:  []TxInput{{PrevTxHash: crypto.Hash{0x01}, Signature: crypto.Signature{0xff}}},
		Outputs: []TxOutput{{Amount: 1, Recipient: crypto.PublicKey{0x02}}},
	}
	digest1 := SigningDigestBytes(tx)
	tx.Inputs[0].Signature = crypto.Signature{0xee}
	digest2 := SigningDigestBytes(tx)
	if string(digest1) != string(digest2) {
		t.Fatalf("signing digest must not depend on the signature bytes")
	}
}
