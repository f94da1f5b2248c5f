// Package utxo implements the authoritative unspent-output set and the
// mempool that stays consistent with it (§4.4). Neither type is internally
// synchronized: the engine package is the sole caller and serializes all
// access behind its own lock (§5, §9 "single authoritative owner").
package utxo

import (
	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
)

// Outpoint identifies a UTXO entry by the transaction that created it and
// the output index within that transaction (§3).
type Outpoint struct {
	TxHash crypto.Hash
	Index  uint32
}

// Entry is a UTXO set value: the output itself, the height it was created
// at (for coinbase maturity), and whether it came from a coinbase (§3).
type Entry struct {
	Output   consensus.TxOutput
	Height   uint64
	Coinbase bool
}

// UndoEntry records a single consumed output so RevertBlock can restore it
// (§9 "side-log").
type UndoEntry struct {
	Outpoint Outpoint
	Entry    Entry
}

// BlockUndo is the side-log captured while applying a block: every output
// the block's transactions consumed, in consumption order.
type BlockUndo struct {
	Spent []UndoEntry
}

// Set is the authoritative unspent-output set at the current chain tip.
type Set struct {
	entries map[Outpoint]Entry
}

// New returns an empty Set.
func New() *Set {
	return &Set{entries: make(map[Outpoint]Entry)}
}

// Resolve looks up op in the set.
func (s *Set) Resolve(op Outpoint) (Entry, bool) {
	e, ok := s.entries[op]
	return e, ok
}

// Len reports the number of live entries.
func (s *Set) Len() int {
	return len(s.entries)
}

func addU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, chainerr.New(chainerr.StructuralInvalid, "value sum overflows 64 bits")
	}
	return sum, nil
}

// ApplyBlock validates every transaction in block against the set as of the
// parent tip plus earlier transactions in the same block, then atomically
// applies it (§3, §4.4, §4.6). On any failure the set is left untouched —
// validation runs entirely against a working copy before anything commits.
// It returns the side-log needed to revert the block and the total fees
// collected by non-coinbase transactions.
func (s *Set) ApplyBlock(block consensus.Block, height uint64) (*BlockUndo, uint64, error) {
	work := make(map[Outpoint]Entry, len(s.entries))
	for k, v := range s.entries {
		work[k] = v
	}

	undo := &BlockUndo{}
	var totalFees uint64

	for i, tx := range block.Transactions {
		isCoinbase := i == 0
		txHash := consensus.TxHash(tx)

		if isCoinbase {
			commitOutputs(work, txHash, tx, height, true)
			continue
		}

		digest := crypto.Digest(consensus.SigningDigestBytes(tx))
		var sumIn uint64
		for _, in := range tx.Inputs {
			op := Outpoint{TxHash: in.PrevTxHash, Index: in.OutputIndex}
			entry, ok := work[op]
			if !ok {
				return nil, 0, chainerr.New(chainerr.UnknownInput, "input does not resolve in utxo set")
			}
			if entry.Coinbase && height < entry.Height+consensus.CoinbaseMaturity {
				return nil, 0, chainerr.New(chainerr.InsufficientValue, "coinbase output is not yet mature")
			}
			if !crypto.Verify(entry.Output.Recipient, digest, in.Signature) {
				return nil, 0, chainerr.New(chainerr.BadSignature, "input signature does not verify")
			}
			var err error
			sumIn, err = addU64(sumIn, entry.Output.Amount)
			if err != nil {
				return nil, 0, err
			}
			undo.Spent = append(undo.Spent, UndoEntry{Outpoint: op, Entry: entry})
			delete(work, op)
		}

		sumOut, err := consensus.SumOutputs(tx.Outputs)
		if err != nil {
			return nil, 0, err
		}
		if sumOut > sumIn {
			return nil, 0, chainerr.New(chainerr.InsufficientValue, "outputs exceed inputs")
		}
		fee := sumIn - sumOut
		totalFees, err = addU64(totalFees, fee)
		if err != nil {
			return nil, 0, err
		}

		commitOutputs(work, txHash, tx, height, false)
	}

	coinbaseCap, err := addU64(consensus.BlockReward(height), totalFees)
	if err != nil {
		return nil, 0, err
	}
	if block.Transactions[0].Outputs[0].Amount > coinbaseCap {
		return nil, 0, chainerr.New(chainerr.CoinbaseOverflow, "coinbase output exceeds reward plus fees")
	}

	s.entries = work
	return undo, totalFees, nil
}

func commitOutputs(work map[Outpoint]Entry, txHash crypto.Hash, tx consensus.Transaction, height uint64, coinbase bool) {
	for i, out := range tx.Outputs {
		op := Outpoint{TxHash: txHash, Index: uint32(i)}
		work[op] = Entry{Output: out, Height: height, Coinbase: coinbase}
	}
}

// RevertBlock inverts a prior ApplyBlock using its side-log: outputs the
// block created are removed, and outputs it consumed are restored (§4.4,
// §9). It is the caller's responsibility to apply undo logs in reverse
// chronological order when reverting several blocks.
func (s *Set) RevertBlock(block consensus.Block, undo *BlockUndo) {
	for i, tx := range block.Transactions {
		txHash := consensus.TxHash(tx)
		for j := range tx.Outputs {
			delete(s.entries, Outpoint{TxHash: txHash, Index: uint32(j)})
		}
		_ = i
	}
	for _, u := range undo.Spent {
		s.entries[u.Outpoint] = u.Entry
	}
}
