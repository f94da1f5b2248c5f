package consensus

import (
	"tenet.dev/node/chainerr"
	"tenet.dev/node/crypto"
	"tenet.dev/node/wire"
)

// minTxInputSize and minTxOutputSize bound how many elements a sequence
// length could plausibly claim given the bytes remaining (§4.2).
const (
	minTxInputSize  = 32 + 4 + 64 + 8
	minTxOutputSize = 8 + 32
)

// EncodeTxInput appends the canonical encoding of in to w.
func EncodeTxInput(w *wire.Writer, in TxInput) {
	w.WriteFixed(in.PrevTxHash[:])
	w.WriteU32(in.OutputIndex)
	w.WriteFixed(in.Signature[:])
	w.WriteU64(in.Marker)
}

// DecodeTxInput reads a TxInput from c.
func DecodeTxInput(c *wire.Cursor) (TxInput, error) {
	var in TxInput
	h, err := c.ReadFixed32()
	if err != nil {
		return in, err
	}
	in.PrevTxHash = crypto.Hash(h)
	idx, err := c.ReadU32()
	if err != nil {
		return in, err
	}
	in.OutputIndex = idx
	sig, err := c.ReadFixed64()
	if err != nil {
		return in, err
	}
	in.Signature = crypto.Signature(sig)
	marker, err := c.ReadU64()
	if err != nil {
		return in, err
	}
	in.Marker = marker
	return in, nil
}

// EncodeTxOutput appends the canonical encoding of out to w.
func EncodeTxOutput(w *wire.Writer, out TxOutput) {
	w.WriteU64(out.Amount)
	w.WriteFixed(out.Recipient[:])
}

// DecodeTxOutput reads a TxOutput from c.
func DecodeTxOutput(c *wire.Cursor) (TxOutput, error) {
	var out TxOutput
	amt, err := c.ReadU64()
	if err != nil {
		return out, err
	}
	out.Amount = amt
	pub, err := c.ReadFixed32()
	if err != nil {
		return out, err
	}
	out.Recipient = crypto.PublicKey(pub)
	return out, nil
}

// EncodeTransaction appends the canonical encoding of tx to w. zeroSigs, when
// true, writes every input's signature as all-zero bytes instead of its real
// value — used to build the "to be signed" digest form (§3).
func EncodeTransaction(w *wire.Writer, tx Transaction, zeroSigs bool) {
	w.WriteSeqLen(len(tx.Inputs))
	for _, in := range tx.Inputs {
		if zeroSigs {
			in.Signature = crypto.Signature{}
		}
		EncodeTxInput(w, in)
	}
	w.WriteSeqLen(len(tx.Outputs))
	for _, out := range tx.Outputs {
		EncodeTxOutput(w, out)
	}
}

// SerializeTransaction returns tx's canonical byte encoding.
func SerializeTransaction(tx Transaction) []byte {
	w := wire.NewWriter(64 + 100*len(tx.Inputs) + 40*len(tx.Outputs))
	EncodeTransaction(w, tx, false)
	return w.Bytes()
}

// SigningDigestBytes returns the "to be signed" encoding of tx: every input
// signature zeroed, then all outputs (§3).
func SigningDigestBytes(tx Transaction) []byte {
	w := wire.NewWriter(64 + 100*len(tx.Inputs) + 40*len(tx.Outputs))
	EncodeTransaction(w, tx, true)
	return w.Bytes()
}

// DecodeTransaction reads a Transaction from c.
func DecodeTransaction(c *wire.Cursor) (Transaction, error) {
	var tx Transaction
	nIn, err := c.ReadSeqLen(minTxInputSize)
	if err != nil {
		return tx, err
	}
	tx.Inputs = make([]TxInput, 0, nIn)
	for i := uint32(0); i < nIn; i++ {
		in, err := DecodeTxInput(c)
		if err != nil {
			return tx, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}
	nOut, err := c.ReadSeqLen(minTxOutputSize)
	if err != nil {
		return tx, err
	}
	tx.Outputs = make([]TxOutput, 0, nOut)
	for i := uint32(0); i < nOut; i++ {
		out, err := DecodeTxOutput(c)
		if err != nil {
			return tx, err
		}
		tx.Outputs = append(tx.Outputs, out)
	}
	return tx, nil
}

// EncodeBlockHeader appends the canonical encoding of h to w.
func EncodeBlockHeader(w *wire.Writer, h BlockHeader) {
	w.WriteFixed(h.PrevBlockHash[:])
	w.WriteFixed(h.MerkleRoot[:])
	w.WriteI64(h.Timestamp)
	w.WriteFixed(h.Target[:])
	w.WriteU64(h.Nonce)
}

// SerializeBlockHeader returns h's canonical byte encoding.
func SerializeBlockHeader(h BlockHeader) []byte {
	w := wire.NewWriter(32 + 32 + 8 + 32 + 8)
	EncodeBlockHeader(w, h)
	return w.Bytes()
}

// DecodeBlockHeader reads a BlockHeader from c.
func DecodeBlockHeader(c *wire.Cursor) (BlockHeader, error) {
	var h BlockHeader
	prev, err := c.ReadFixed32()
	if err != nil {
		return h, err
	}
	h.PrevBlockHash = crypto.Hash(prev)
	root, err := c.ReadFixed32()
	if err != nil {
		return h, err
	}
	h.MerkleRoot = crypto.Hash(root)
	ts, err := c.ReadI64()
	if err != nil {
		return h, err
	}
	h.Timestamp = ts
	target, err := c.ReadFixed32()
	if err != nil {
		return h, err
	}
	h.Target = target
	nonce, err := c.ReadU64()
	if err != nil {
		return h, err
	}
	h.Nonce = nonce
	return h, nil
}

// EncodeBlock appends the canonical encoding of b to w.
func EncodeBlock(w *wire.Writer, b Block) {
	EncodeBlockHeader(w, b.Header)
	w.WriteSeqLen(len(b.Transactions))
	for _, tx := range b.Transactions {
		EncodeTransaction(w, tx, false)
	}
}

// SerializeBlock returns b's canonical byte encoding.
func SerializeBlock(b Block) []byte {
	w := wire.NewWriter(4096)
	EncodeBlock(w, b)
	return w.Bytes()
}

// DecodeBlock reads a Block from c.
func DecodeBlock(c *wire.Cursor) (Block, error) {
	var b Block
	h, err := DecodeBlockHeader(c)
	if err != nil {
		return b, err
	}
	b.Header = h
	nTx, err := c.ReadSeqLen(0)
	if err != nil {
		return b, err
	}
	if nTx > MaxBlockTransactions {
		return b, chainerr.New(chainerr.Malformed, "transaction count exceeds maximum")
	}
	b.Transactions = make([]Transaction, 0, nTx)
	for i := uint32(0); i < nTx; i++ {
		tx, err := DecodeTransaction(c)
		if err != nil {
			return b, err
		}
		b.Transactions = append(b.Transactions, tx)
	}
	return b, nil
}

// ParseBlock decodes a single root Block from b, rejecting any trailing
// bytes (§4.2).
func ParseBlock(b []byte) (Block, error) {
	c := wire.NewCursor(b)
	blk, err := DecodeBlock(c)
	if err != nil {
		return Block{}, err
	}
	if !c.Done() {
		return Block{}, chainerr.New(chainerr.Malformed, "trailing garbage after block")
	}
	return blk, nil
}

// ParseTransaction decodes a single root Transaction from b, rejecting any
// trailing bytes.
func ParseTransaction(b []byte) (Transaction, error) {
	c := wire.NewCursor(b)
	tx, err := DecodeTransaction(c)
	if err != nil {
		return Transaction{}, err
	}
	if !c.Done() {
		return Transaction{}, chainerr.New(chainerr.Malformed, "trailing garbage after transaction")
	}
	return tx, nil
}

// ParseBlockHeader decodes a single root BlockHeader from b.
func ParseBlockHeader(b []byte) (BlockHeader, error) {
	c := wire.NewCursor(b)
	h, err := DecodeBlockHeader(c)
	if err != nil {
		return BlockHeader{}, err
	}
	if !c.Done() {
		return BlockHeader{}, chainerr.New(chainerr.Malformed, "trailing garbage after header")
	}
	return h, nil
}
