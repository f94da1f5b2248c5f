// Package consensus implements the block and transaction data model (§3),
// Merkle root construction, proof-of-work and difficulty checks (§4.3), and
// the structural invariants every entity must satisfy before it can reach
// the UTXO set or chain store. It is a pure library: no logging, no locks,
// no I/O, matching the teacher's own consensus package.
package consensus

import "tenet.dev/node/crypto"

// Conservative constants the README left unspecified (§9 "Open questions").
// Chosen deliberately and kept compile-time configurable here rather than
// buried in magic numbers throughout the package.
const (
	// DifficultyWindow is the number of blocks between retargets.
	DifficultyWindow = 2016
	// TargetBlockIntervalSeconds is the intended spacing between blocks.
	TargetBlockIntervalSeconds = 600
	// MedianTimeSpan is the number of preceding timestamps a new block's
	// timestamp must exceed the median of (§4.3).
	MedianTimeSpan = 11
	// MaxFutureDriftSeconds bounds how far ahead of wall clock a timestamp
	// may be (§4.3: "no more than 2 hours ahead").
	MaxFutureDriftSeconds = 2 * 60 * 60
	// CoinbaseMaturity is the number of confirmations a coinbase output
	// must accumulate before it may be spent (Bitcoin-style convention;
	// unspecified by the README, chosen conservatively per §9).
	CoinbaseMaturity = 100
	// MaxBlockTransactions bounds the number of transactions a block may
	// carry; unspecified by the README, chosen conservatively per §9.
	MaxBlockTransactions = 100000
	// BaseReward is the fixed block subsidy in the smallest indivisible
	// unit, before fees.
	BaseReward uint64 = 50_0000_0000
)

// GenesisTarget is the fixed initial target new chains start from (§4.3).
var GenesisTarget = [32]byte{
	0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// TxInput references a prior output by (PrevTxHash, OutputIndex) and carries
// a signature over the enclosing transaction's signing digest (§3). A
// coinbase transaction's sole input is not a real spend: it carries the
// conventional null outpoint (CoinbaseNullHash, CoinbaseNullIndex) and a
// Marker field set to the block's height, so that two coinbases paying the
// same amount to the same recipient still hash to distinct transactions
// (§3: "its hash must still be unique").
type TxInput struct {
	PrevTxHash  crypto.Hash
	OutputIndex uint32
	Signature   crypto.Signature
	Marker      uint64
}

// CoinbaseNullIndex is the conventional OutputIndex a coinbase's marker
// input carries, alongside the all-zero PrevTxHash (§3).
const CoinbaseNullIndex uint32 = 0xffffffff

// TxOutput pays Amount, in the smallest indivisible unit, to Recipient (§3).
type TxOutput struct {
	Amount    uint64
	Recipient crypto.PublicKey
}

// Transaction is an ordered list of inputs and outputs (§3). A coinbase
// transaction has exactly one input, the null marker (see IsCoinbase), and
// exactly one output.
type Transaction struct {
	Inputs  []TxInput
	Outputs []TxOutput
}

// IsCoinbase reports whether tx has the coinbase shape: exactly one input
// carrying the null marker outpoint (§3).
func (tx *Transaction) IsCoinbase() bool {
	if len(tx.Inputs) != 1 {
		return false
	}
	in := tx.Inputs[0]
	return in.PrevTxHash == (crypto.Hash{}) && in.OutputIndex == CoinbaseNullIndex
}

// NewCoinbase builds the coinbase transaction for a block at height, paying
// amount to recipient. The marker input's height makes the transaction's
// hash unique across blocks even when two blocks pay the same amount to the
// same recipient (§3).
func NewCoinbase(height uint64, amount uint64, recipient crypto.PublicKey) Transaction {
	return Transaction{
		Inputs: []TxInput{{
			OutputIndex: CoinbaseNullIndex,
			Marker:      height,
		}},
		Outputs: []TxOutput{{Amount: amount, Recipient: recipient}},
	}
}

// BlockHeader is (prev_block_hash, merkle_root, timestamp_seconds, target,
// nonce) (§3).
type BlockHeader struct {
	PrevBlockHash crypto.Hash
	MerkleRoot    crypto.Hash
	Timestamp     int64
	Target        [32]byte
	Nonce         uint64
}

// Block is a header plus an ordered transaction list whose first entry must
// be the coinbase (§3).
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}
