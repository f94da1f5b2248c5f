package consensus

import (
	"testing"

	"tenet.dev/node/crypto"
)

func fixtureTx(amount uint64) Transaction {
	return Transaction{
		Outputs: []TxOutput{{Amount: amount, Recipient: crypto.PublicKey{0x01}}},
	}
}

func TestMerkleRoot_Empty(t *testing.T) {
	root := MerkleRoot(nil)
	if root != (crypto.Hash{}) {
		t.Fatalf("expected all-zero hash for empty list, got %x", root)
	}
}

func TestMerkleRoot_Single(t *testing.T) {
	tx := fixtureTx(1)
	root := MerkleRoot([]Transaction{tx})
	want := TxHash(tx)
	if root != want {
		t.Fatalf("single-entry root should equal the transaction hash: got %x want %x", root, want)
	}
}

func TestMerkleRoot_OddDuplicatesLast(t *testing.T) {
	a, b, c := fixtureTx(1), fixtureTx(2), fixtureTx(3)
	three := MerkleRoot([]Transaction{a, b, c})
	four := MerkleRoot([]Transaction{a, b, c, c})
	if three != four {
		t.Fatalf("odd-length root must equal the root with the last hash duplicated")
	}
}

func TestMerkleRoot_PairHashing(t *testing.T) {
	a, b := fixtureTx(1), fixtureTx(2)
	ha, hb := TxHash(a), TxHash(b)
	got := MerkleRoot([]Transaction{a, b})
	buf := append(append([]byte{}, ha[:]...), hb[:]...)
	want := crypto.Digest(buf)
	if got != want {
		t.Fatalf("two-entry root mismatch: got %x want %x", got, want)
	}
}
