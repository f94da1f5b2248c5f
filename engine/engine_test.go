package engine

import (
	"testing"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/utxo"
)

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
	t.Fatalf("failed to find a passing nonce")
	return h
}

func testGenesis(t *testing.T, pub crypto.PublicKey) consensus.Block {
	t.Helper()
	cb := consensus.NewCoinbase(0, consensus.BaseReward, pub)
	h := consensus.BlockHeader{Timestamp: 1000, Target: easyTarget}
	h.MerkleRoot = consensus.MerkleRoot([]consensus.Transaction{cb})
	return consensus.Block{Header: mustMine(t, h), Transactions: []consensus.Transaction{cb}}
}

// S1 Genesis only: fresh node, no peers; submit_transaction with any input
// is rejected UnknownInput.
func TestEngine_S1_GenesisOnly(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesis := testGenesis(t, pub)
	e, err := New(genesis, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, height, _ := e.Tip()
	if height != 0 {
		t.Fatalf("expected tip height 0, got %d", height)
	}

	spend := consensus.Transaction{
		Inputs:  []consensus.TxInput{{PrevTxHash: crypto.Hash{0xaa}, OutputIndex: 0}},
		Outputs: []consensus.TxOutput{{Amount: 1, Recipient: pub}},
	}
	if _, err := e.SubmitTransaction(spend); !chainerr.Is(err, chainerr.UnknownInput) {
		t.Fatalf("expected UnknownInput, got %v", err)
	}
}

// S2 Mine one: a miner-shaped caller requests the expected target, builds a
// template paying itself, finds a nonce, and submits it.
func TestEngine_S2_MineOne(t *testing.T) {
	_, minerPub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesisSigner, genesisPub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = genesisSigner
	genesis := testGenesis(t, genesisPub)
	e, err := New(genesis, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target, err := e.NextExpectedTarget()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tipHash, _, _ := e.Tip()
	cb := consensus.NewCoinbase(1, consensus.BaseReward, minerPub)
	h := consensus.BlockHeader{PrevBlockHash: tipHash, Timestamp: 1001, Target: target}
	h.MerkleRoot = consensus.MerkleRoot([]consensus.Transaction{cb})
	h = mustMine(t, h)
	block := consensus.Block{Header: h, Transactions: []consensus.Transaction{cb}}

	outcome, err := e.SubmitBlock(block, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Extended {
		t.Fatalf("expected Extended, got %v", outcome)
	}
	_, height, _ := e.Tip()
	if height != 1 {
		t.Fatalf("expected tip height 1, got %d", height)
	}
	entry, ok := e.Resolve(utxo.Outpoint{TxHash: consensus.TxHash(cb), Index: 0})
	if !ok || entry.Output.Amount != consensus.BaseReward {
		t.Fatalf("expected the miner's coinbase output to resolve for BaseReward")
	}
}

// S3 Double-spend: two transactions spending the same UTXO; first accepted,
// second rejected DoubleSpend.
func TestEngine_S3_DoubleSpend(t *testing.T) {
	minerPriv, minerPub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, otherPub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesis := testGenesis(t, minerPub)
	e, err := New(genesis, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cbHash := consensus.TxHash(genesis.Transactions[0])

	spend1 := consensus.Transaction{
		Inputs:  []consensus.TxInput{{PrevTxHash: cbHash, OutputIndex: 0}},
		Outputs: []consensus.TxOutput{{Amount: 1, Recipient: otherPub}},
	}
	digest1 := crypto.Digest(consensus.SigningDigestBytes(spend1))
	sig1, err := crypto.Sign(minerPriv, digest1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spend1.Inputs[0].Signature = sig1

	spend2 := consensus.Transaction{
		Inputs:  []consensus.TxInput{{PrevTxHash: cbHash, OutputIndex: 0}},
		Outputs: []consensus.TxOutput{{Amount: 2, Recipient: otherPub}},
	}
	digest2 := crypto.Digest(consensus.SigningDigestBytes(spend2))
	sig2, err := crypto.Sign(minerPriv, digest2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spend2.Inputs[0].Signature = sig2

	if _, err := e.SubmitTransaction(spend1); err != nil {
		t.Fatalf("unexpected error admitting first spend: %v", err)
	}
	if _, err := e.SubmitTransaction(spend2); !chainerr.Is(err, chainerr.DoubleSpend) {
		t.Fatalf("expected DoubleSpend, got %v", err)
	}
}

// S5 Bad PoW: a SUBMIT whose header hash does not satisfy the target is
// rejected BadPoW.
func TestEngine_S5_BadPow(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	genesis := testGenesis(t, pub)
	e, err := New(genesis, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target, err := e.NextExpectedTarget()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tipHash, _, _ := e.Tip()
	cb := consensus.NewCoinbase(1, consensus.BaseReward, pub)
	h := consensus.BlockHeader{PrevBlockHash: tipHash, Timestamp: 1001, Target: target, Nonce: 0}
	h.MerkleRoot = consensus.MerkleRoot([]consensus.Transaction{cb})
	// Every hash passes the easy expected target, so search against the far
	// harder genesis target instead. PoW is checked before the expected
	// target, so the failing header is rejected BadPoW.
	h.Target = consensus.GenesisTarget
	var bad consensus.BlockHeader
	found := false
	for nonce := uint64(0); nonce < 10000; nonce++ {
		h.Nonce = nonce
		if consensus.CheckPow(h) != nil {
			bad = h
			found = true
			break
		}
	}
	if !found {
		t.Skip("could not locate a failing nonce against the genesis target")
	}
	block := consensus.Block{Header: bad, Transactions: []consensus.Transaction{cb}}

	if _, err := e.SubmitBlock(block, 5000); !chainerr.Is(err, chainerr.BadPoW) {
		t.Fatalf("expected BadPoW, got %v", err)
	}
	_, height, _ := e.Tip()
	if height != 0 {
		t.Fatalf("a rejected block must not move the tip")
	}
}
