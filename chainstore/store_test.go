package chainstore

import (
	"testing"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/utxo"
)

// easyTarget is a target so permissive that essentially any header hash
// satisfies it, letting tests build chains without a real mining loop.
var easyTarget = [32]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
}

func mustMine(t *testing.T, h consensus.BlockHeader) consensus.BlockHeader {
	t.Helper()
	for nonce := uint64(0); nonce < 1000; nonce++ {
		h.Nonce = nonce
		if consensus.CheckPow(h) == nil {
			return h
		}
	}
	t.Fatalf("failed to find a passing nonce against the easy target")
	return h
}

func testGenesis(t *testing.T, pub crypto.PublicKey) consensus.Block {
	t.Helper()
	cb := consensus.NewCoinbase(0, consensus.BaseReward, pub)
	h := consensus.BlockHeader{
		Timestamp: 1000,
		Target:    easyTarget,
	}
	h.MerkleRoot = consensus.MerkleRoot([]consensus.Transaction{cb})
	h = mustMine(t, h)
	return consensus.Block{Header: h, Transactions: []consensus.Transaction{cb}}
}

// childBlock builds a block extending parent at the given height, so its
// coinbase marker matches where the caller intends to insert it.
func childBlock(t *testing.T, parent consensus.Block, height uint64, pub crypto.PublicKey, timestamp int64) consensus.Block {
	t.Helper()
	cb := consensus.NewCoinbase(height, consensus.BaseReward, pub)
	h := consensus.BlockHeader{
		PrevBlockHash: consensus.BlockHash(parent),
		Timestamp:     timestamp,
		Target:        easyTarget,
	}
	h.MerkleRoot = consensus.MerkleRoot([]consensus.Transaction{cb})
	h = mustMine(t, h)
	return consensus.Block{Header: h, Transactions: []consensus.Transaction{cb}}
}

func TestStore_ExtendTip(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesis := testGenesis(t, pub)
	set := utxo.New()
	store, err := New(genesis, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b1 := childBlock(t, genesis, 1, pub, 1001)
	outcome, applied, _, err := store.Insert(b1, set, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Extended {
		t.Fatalf("expected Extended, got %v", outcome)
	}
	if len(applied) != 1 {
		t.Fatalf("expected exactly one applied block")
	}
	if store.TipHeight() != 1 {
		t.Fatalf("expected tip height 1, got %d", store.TipHeight())
	}
}

func TestStore_OrphanThenPromote(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesis := testGenesis(t, pub)
	set := utxo.New()
	store, err := New(genesis, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b1 := childBlock(t, genesis, 1, pub, 1001)
	b2 := childBlock(t, b1, 2, pub, 1002)

	// Submit b2 before its parent b1 has arrived.
	if _, _, _, err := store.Insert(b2, set, 2000); !chainerr.Is(err, chainerr.UnknownParent) {
		t.Fatalf("expected UnknownParent, got %v", err)
	}

	if _, _, _, err := store.Insert(b1, set, 2000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending := store.TakeOrphansFor(consensus.BlockHash(b1))
	if len(pending) != 1 {
		t.Fatalf("expected b2 to be pending on b1's arrival, got %d", len(pending))
	}
	outcome, _, _, err := store.Insert(pending[0], set, 2000)
	if err != nil {
		t.Fatalf("unexpected error promoting orphan: %v", err)
	}
	if outcome != Extended {
		t.Fatalf("expected Extended after promotion, got %v", outcome)
	}
	if store.TipHeight() != 2 {
		t.Fatalf("expected tip height 2, got %d", store.TipHeight())
	}
}

func TestStore_ReorgToHigherWork(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesis := testGenesis(t, pub)
	set := utxo.New()
	store, err := New(genesis, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Branch A: two blocks.
	a1 := childBlock(t, genesis, 1, pub, 1001)
	if _, _, _, err := store.Insert(a1, set, 5000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2 := childBlock(t, a1, 2, pub, 1002)
	if _, _, _, err := store.Insert(a2, set, 5000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.TipHash() != consensus.BlockHash(a2) {
		t.Fatalf("expected branch A to be the tip")
	}

	// Branch B: three blocks, diverging at genesis, arrives afterward.
	b1 := childBlock(t, genesis, 1, pub, 1011)
	b2 := childBlock(t, b1, 2, pub, 1012)
	b3 := childBlock(t, b2, 3, pub, 1013)

	if outcome, _, _, err := store.Insert(b1, set, 5000); err != nil || outcome != SideChain {
		t.Fatalf("expected b1 to land as a side chain, got outcome=%v err=%v", outcome, err)
	}
	if outcome, _, _, err := store.Insert(b2, set, 5000); err != nil || outcome != SideChain {
		t.Fatalf("expected b2 to land as a side chain, got outcome=%v err=%v", outcome, err)
	}
	outcome, applied, reverted, err := store.Insert(b3, set, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Reorged {
		t.Fatalf("expected Reorged once branch B overtakes branch A, got %v", outcome)
	}
	if len(reverted) != 2 {
		t.Fatalf("expected the two branch-A blocks to be reverted, got %d", len(reverted))
	}
	if len(applied) != 3 {
		t.Fatalf("expected all three branch-B blocks to be applied, got %d", len(applied))
	}
	if store.TipHash() != consensus.BlockHash(b3) {
		t.Fatalf("expected branch B's tip to become canonical")
	}
	if store.TipHeight() != 3 {
		t.Fatalf("expected tip height 3, got %d", store.TipHeight())
	}
}

func TestStore_TieBreakPrefersExistingTip(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesis := testGenesis(t, pub)
	set := utxo.New()
	store, err := New(genesis, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a1 := childBlock(t, genesis, 1, pub, 1001)
	if _, _, _, err := store.Insert(a1, set, 5000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b1 := childBlock(t, genesis, 1, pub, 1002)
	outcome, _, _, err := store.Insert(b1, set, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != SideChain {
		t.Fatalf("expected an equal-work competitor to remain a side chain, got %v", outcome)
	}
	if store.TipHash() != consensus.BlockHash(a1) {
		t.Fatalf("expected the first-seen tip to be preferred on a tie")
	}
}
