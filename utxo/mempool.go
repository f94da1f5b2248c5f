package utxo

import (
	"sort"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
)

// DefaultMempoolMaxBytes is the byte cap chosen per §5 ("bounded in bytes
// (e.g., 300 MB)").
const DefaultMempoolMaxBytes = 300 * 1024 * 1024

type mempoolEntry struct {
	tx      consensus.Transaction
	size    int
	fee     uint64
	feeRate float64
}

// Mempool holds validated, unconfirmed transactions consistent with a UTXO
// set (§3, §4.4).
type Mempool struct {
	maxBytes   int
	entries    map[crypto.Hash]mempoolEntry
	claimed    map[Outpoint]crypto.Hash
	totalBytes int
}

// NewMempool returns an empty Mempool bounded at maxBytes.
func NewMempool(maxBytes int) *Mempool {
	if maxBytes <= 0 {
		maxBytes = DefaultMempoolMaxBytes
	}
	return &Mempool{
		maxBytes: maxBytes,
		entries:  make(map[crypto.Hash]mempoolEntry),
		claimed:  make(map[Outpoint]crypto.Hash),
	}
}

// Len reports the number of pending transactions.
func (m *Mempool) Len() int {
	return len(m.entries)
}

// Bytes reports the total serialized size of pending transactions.
func (m *Mempool) Bytes() int {
	return m.totalBytes
}

// Has reports whether hash is already pending.
func (m *Mempool) Has(hash crypto.Hash) bool {
	_, ok := m.entries[hash]
	return ok
}

// Get returns the pending transaction for hash, if any.
func (m *Mempool) Get(hash crypto.Hash) (consensus.Transaction, bool) {
	e, ok := m.entries[hash]
	return e.tx, ok
}

// Admit validates tx against set and, if every rule passes, inserts it
// (§4.4). The returned error, when non-nil, is always a *chainerr.Error
// whose Kind is one of the mempool's closed rejection reasons: Malformed,
// UnknownInput, DoubleSpend, BadSignature, InsufficientValue, AlreadyKnown,
// or MempoolFull.
func (m *Mempool) Admit(tx consensus.Transaction, set *Set) (crypto.Hash, error) {
	if err := consensus.ValidateTransactionStructure(tx, false); err != nil {
		return crypto.Hash{}, chainerr.Wrap(chainerr.Malformed, "mempool: malformed transaction", err)
	}

	txHash := consensus.TxHash(tx)
	if m.Has(txHash) {
		return txHash, chainerr.New(chainerr.AlreadyKnown, "transaction already in mempool")
	}

	digest := crypto.Digest(consensus.SigningDigestBytes(tx))
	var sumIn uint64
	for _, in := range tx.Inputs {
		op := Outpoint{TxHash: in.PrevTxHash, Index: in.OutputIndex}
		if claimant, ok := m.claimed[op]; ok && claimant != txHash {
			return txHash, chainerr.New(chainerr.DoubleSpend, "input already claimed by another mempool transaction")
		}
		entry, ok := set.Resolve(op)
		if !ok {
			return txHash, chainerr.New(chainerr.UnknownInput, "input does not resolve in utxo set")
		}
		if !crypto.Verify(entry.Output.Recipient, digest, in.Signature) {
			return txHash, chainerr.New(chainerr.BadSignature, "input signature does not verify")
		}
		var err error
		sumIn, err = addU64(sumIn, entry.Output.Amount)
		if err != nil {
			return txHash, chainerr.Wrap(chainerr.Malformed, "mempool: input sum overflow", err)
		}
	}

	sumOut, err := consensus.SumOutputs(tx.Outputs)
	if err != nil {
		return txHash, chainerr.Wrap(chainerr.Malformed, "mempool: output sum overflow", err)
	}
	if sumOut > sumIn {
		return txHash, chainerr.New(chainerr.InsufficientValue, "outputs exceed inputs")
	}
	fee := sumIn - sumOut

	raw := consensus.SerializeTransaction(tx)
	size := len(raw)
	feeRate := float64(fee) / float64(size)

	if m.totalBytes+size > m.maxBytes {
		if !m.evictToFit(size, feeRate) {
			return txHash, chainerr.New(chainerr.MempoolFull, "mempool is full and incoming transaction does not outbid the lowest fee-rate entry")
		}
	}

	m.entries[txHash] = mempoolEntry{tx: tx, size: size, fee: fee, feeRate: feeRate}
	for _, in := range tx.Inputs {
		m.claimed[Outpoint{TxHash: in.PrevTxHash, Index: in.OutputIndex}] = txHash
	}
	m.totalBytes += size
	return txHash, nil
}

// evictToFit evicts the lowest fee-rate entries until there is room for an
// incoming transaction of the given size and fee rate, refusing if the
// incoming transaction would not outbid what it displaces (§5).
func (m *Mempool) evictToFit(incomingSize int, incomingFeeRate float64) bool {
	type scored struct {
		hash    crypto.Hash
		feeRate float64
		size    int
	}
	all := make([]scored, 0, len(m.entries))
	for h, e := range m.entries {
		all = append(all, scored{hash: h, feeRate: e.feeRate, size: e.size})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].feeRate < all[j].feeRate })

	freed := 0
	var toEvict []crypto.Hash
	for _, cand := range all {
		if cand.feeRate >= incomingFeeRate {
			break
		}
		toEvict = append(toEvict, cand.hash)
		freed += cand.size
		if m.totalBytes-freed+incomingSize <= m.maxBytes {
			break
		}
	}
	if m.totalBytes-freed+incomingSize > m.maxBytes {
		return false
	}
	for _, h := range toEvict {
		m.remove(h)
	}
	return true
}

func (m *Mempool) remove(hash crypto.Hash) {
	e, ok := m.entries[hash]
	if !ok {
		return
	}
	for _, in := range e.tx.Inputs {
		op := Outpoint{TxHash: in.PrevTxHash, Index: in.OutputIndex}
		if m.claimed[op] == hash {
			delete(m.claimed, op)
		}
	}
	m.totalBytes -= e.size
	delete(m.entries, hash)
}

// EvictForBlock drops every transaction block just included, and every
// remaining mempool transaction that would now double-spend one of the
// block's consumed inputs (§4.4).
func (m *Mempool) EvictForBlock(block consensus.Block) {
	consumed := make(map[Outpoint]bool)
	for i, tx := range block.Transactions {
		if i == 0 {
			continue
		}
		for _, in := range tx.Inputs {
			consumed[Outpoint{TxHash: in.PrevTxHash, Index: in.OutputIndex}] = true
		}
		m.remove(consensus.TxHash(tx))
	}
	for op := range consumed {
		if hash, ok := m.claimed[op]; ok {
			m.remove(hash)
		}
	}
}

// ReAdmit opportunistically re-admits transactions displaced by a reorg
// (excluding coinbases); admission failures are silently dropped (§4.4).
func (m *Mempool) ReAdmit(txs []consensus.Transaction, set *Set) {
	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}
		_, _ = m.Admit(tx, set)
	}
}

// SelectForTemplate returns a fee-maximizing, internally consistent subset
// of the mempool for a candidate block (§4.8). Because the mempool already
// guarantees no two entries claim the same input, any prefix of the
// fee-rate-descending order is internally consistent.
func (m *Mempool) SelectForTemplate(maxCount int) []consensus.Transaction {
	type scored struct {
		tx      consensus.Transaction
		feeRate float64
	}
	all := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		all = append(all, scored{tx: e.tx, feeRate: e.feeRate})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].feeRate > all[j].feeRate })

	if maxCount <= 0 || maxCount > len(all) {
		maxCount = len(all)
	}
	out := make([]consensus.Transaction, maxCount)
	for i := 0; i < maxCount; i++ {
		out[i] = all[i].tx
	}
	return out
}

// All returns every mempool transaction in unspecified order, for GET_MEMPOOL
// responses (§4.7).
func (m *Mempool) All() []consensus.Transaction {
	out := make([]consensus.Transaction, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.tx)
	}
	return out
}
