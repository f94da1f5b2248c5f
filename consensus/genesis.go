package consensus

import "tenet.dev/node/crypto"

// GenesisRecipient is the fixed, well-known public key credited with the
// genesis coinbase. No private key for it has ever been published, so the
// genesis subsidy is permanently unspendable.
var GenesisRecipient = crypto.PublicKey{
	0x47, 0x65, 0x6e, 0x65, 0x73, 0x69, 0x73, 0x2d, 0x62, 0x6c, 0x6f, 0x63, 0x6b,
}

// GenesisTimestamp is the fixed timestamp embedded in the genesis block.
const GenesisTimestamp int64 = 1231006505

// Genesis deterministically builds and mines the network's genesis block.
// Any node bootstrapping from an empty blockchain file constructs the
// identical block: the coinbase, timestamp and target are fixed constants,
// and the proof-of-work search is an exhaustive scan from nonce zero, so it
// always halts on the same nonce.
func Genesis() Block {
	cb := NewCoinbase(0, BaseReward, GenesisRecipient)
	h := BlockHeader{
		MerkleRoot: MerkleRoot([]Transaction{cb}),
		Timestamp:  GenesisTimestamp,
		Target:     GenesisTarget,
	}
	for nonce := uint64(0); ; nonce++ {
		h.Nonce = nonce
		if CheckPow(h) == nil {
			break
		}
	}
	return Block{Header: h, Transactions: []Transaction{cb}}
}
