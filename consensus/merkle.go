package consensus

import "tenet.dev/node/crypto"

// MerkleRoot computes the Merkle root of an ordered transaction list (§4.3):
// H_i = hash(tx_i); if the list has odd length greater than one, the last
// hash is duplicated; then adjacent pairs are hashed together
// (H_2k || H_2k+1) until one hash remains. An empty list yields the
// all-zero hash — only reachable in tests, since a valid block always
// carries at least a coinbase.
func MerkleRoot(txs []Transaction) crypto.Hash {
	if len(txs) == 0 {
		return crypto.Hash{}
	}
	level := make([]crypto.Hash, len(txs))
	for i, tx := range txs {
		level[i] = TxHash(tx)
	}
	return merkleFold(level)
}

func merkleFold(level []crypto.Hash) crypto.Hash {
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]crypto.Hash, 0, len(level)/2)
		buf := make([]byte, 64)
		for i := 0; i < len(level); i += 2 {
			copy(buf[:32], level[i][:])
			copy(buf[32:], level[i+1][:])
			next = append(next, crypto.Digest(buf))
		}
		level = next
	}
	return level[0]
}
