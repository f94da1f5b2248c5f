package consensus

import "tenet.dev/node/chainerr"

// SumOutputs returns the total amount carried by outs, rejecting totals that
// would overflow a uint64 (§3: "amounts fit in 64 bits").
func SumOutputs(outs []TxOutput) (uint64, error) {
	var total uint64
	for _, o := range outs {
		next := total + o.Amount
		if next < total {
			return 0, chainerr.New(chainerr.StructuralInvalid, "output total overflows 64 bits")
		}
		total = next
	}
	return total, nil
}

// ValidateTransactionStructure checks the self-contained invariants of tx
// from §3: at least one output, and the coinbase shape (exactly one null
// marker input, exactly one output) iff isCoinbase. It does not resolve
// inputs against the UTXO set or verify signatures — those require chain
// context and are the responsibility of the engine and utxo packages.
func ValidateTransactionStructure(tx Transaction, isCoinbase bool) error {
	if len(tx.Outputs) == 0 {
		return chainerr.New(chainerr.StructuralInvalid, "transaction has no outputs")
	}
	if _, err := SumOutputs(tx.Outputs); err != nil {
		return err
	}
	if isCoinbase {
		if !tx.IsCoinbase() {
			return chainerr.New(chainerr.StructuralInvalid, "coinbase must carry exactly one null marker input")
		}
		if len(tx.Outputs) != 1 {
			return chainerr.New(chainerr.StructuralInvalid, "coinbase must have exactly one output")
		}
		return nil
	}
	if len(tx.Inputs) == 0 {
		return chainerr.New(chainerr.StructuralInvalid, "non-coinbase transaction has no inputs")
	}
	if tx.IsCoinbase() {
		return chainerr.New(chainerr.StructuralInvalid, "non-coinbase transaction has coinbase shape")
	}
	return nil
}

// ValidateCoinbaseHeight checks that b's coinbase marker input carries the
// height b is being inserted at, so a coinbase's uniqueness guarantee
// (§3) actually holds: without this check a miner could reuse an old
// marker and reintroduce the collision the marker exists to prevent.
func ValidateCoinbaseHeight(b Block, height uint64) error {
	marker := b.Transactions[0].Inputs[0].Marker
	if marker != height {
		return chainerr.New(chainerr.StructuralInvalid, "coinbase marker does not match block height")
	}
	return nil
}

// ValidateBlockStructure checks the self-contained invariants of b from §3:
// a coinbase-first transaction list, a matching Merkle root, and a
// satisfied proof-of-work. It does not check the expected difficulty,
// timestamp history, parent linkage, or UTXO resolution — those require
// chain context (§4.6).
func ValidateBlockStructure(b Block) error {
	if len(b.Transactions) == 0 {
		return chainerr.New(chainerr.StructuralInvalid, "block has no transactions")
	}
	if len(b.Transactions) > MaxBlockTransactions {
		return chainerr.New(chainerr.StructuralInvalid, "block exceeds maximum transaction count")
	}
	if err := ValidateTransactionStructure(b.Transactions[0], true); err != nil {
		return err
	}
	for _, tx := range b.Transactions[1:] {
		if tx.IsCoinbase() {
			return chainerr.New(chainerr.StructuralInvalid, "non-first transaction has coinbase shape")
		}
		if err := ValidateTransactionStructure(tx, false); err != nil {
			return err
		}
	}
	wantRoot := MerkleRoot(b.Transactions)
	if b.Header.MerkleRoot != wantRoot {
		return chainerr.New(chainerr.StructuralInvalid, "merkle root mismatch")
	}
	if err := CheckPow(b.Header); err != nil {
		return err
	}
	return nil
}
