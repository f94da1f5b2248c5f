package consensus

import "tenet.dev/node/crypto"

// TxHash returns the identity hash of tx: SHA-256 of its canonical
// serialization (§3).
func TxHash(tx Transaction) crypto.Hash {
	return crypto.Digest(SerializeTransaction(tx))
}

// HeaderHash returns the identity hash of h.
func HeaderHash(h BlockHeader) crypto.Hash {
	return crypto.Digest(SerializeBlockHeader(h))
}

// BlockHash returns the identity hash of b, which is the hash of its header
// alone — the transaction list is committed to via the Merkle root inside
// the header.
func BlockHash(b Block) crypto.Hash {
	return HeaderHash(b.Header)
}
