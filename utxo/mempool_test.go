package utxo

import (
	"testing"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
)

func TestMempool_AdmitAndDoubleSpend(t *testing.T) {
	minerPriv, minerPub := mustKeypair(t)
	_, toPub := mustKeypair(t)
	cb := coinbaseTx(consensus.BaseReward, minerPub)
	cbHash := consensus.TxHash(cb)

	s := New()
	if _, _, err := s.ApplyBlock(consensus.Block{Transactions: []consensus.Transaction{cb}}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mp := NewMempool(0)
	spend1 := signedSpend(t, minerPriv, cbHash, 0, 10, toPub)
	if _, err := mp.Admit(spend1, s); err != nil {
		t.Fatalf("unexpected error admitting first spend: %v", err)
	}

	spend2 := signedSpend(t, minerPriv, cbHash, 0, 20, toPub)
	if _, err := mp.Admit(spend2, s); !chainerr.Is(err, chainerr.DoubleSpend) {
		t.Fatalf("expected DoubleSpend for second claimant, got %v", err)
	}

	if _, err := mp.Admit(spend1, s); !chainerr.Is(err, chainerr.AlreadyKnown) {
		t.Fatalf("expected AlreadyKnown re-admitting the same transaction, got %v", err)
	}
}

func TestMempool_UnknownInput(t *testing.T) {
	minerPriv, minerPub := mustKeypair(t)
	s := New()
	mp := NewMempool(0)
	spend := signedSpend(t, minerPriv, crypto.Hash{0xde, 0xad}, 0, 1, minerPub)
	if _, err := mp.Admit(spend, s); !chainerr.Is(err, chainerr.UnknownInput) {
		t.Fatalf("expected UnknownInput, got %v", err)
	}
}

func TestMempool_EvictForBlock(t *testing.T) {
	minerPriv, minerPub := mustKeypair(t)
	_, toPub := mustKeypair(t)
	cb := coinbaseTx(consensus.BaseReward, minerPub)
	cbHash := consensus.TxHash(cb)

	s := New()
	if _, _, err := s.ApplyBlock(consensus.Block{Transactions: []consensus.Transaction{cb}}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mp := NewMempool(0)
	spend := signedSpend(t, minerPriv, cbHash, 0, 10, toPub)
	if _, err := mp.Admit(spend, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	block := consensus.Block{Transactions: []consensus.Transaction{coinbaseTx(consensus.BaseReward, minerPub), spend}}
	mp.EvictForBlock(block)
	if mp.Len() != 0 {
		t.Fatalf("expected mempool to be empty after the including block is applied")
	}
}

func TestMempool_SelectForTemplate_FeeRateOrder(t *testing.T) {
	minerPriv, minerPub := mustKeypair(t)
	_, toPub := mustKeypair(t)
	cb := coinbaseTx(consensus.BaseReward, minerPub)
	cbHash := consensus.TxHash(cb)

	s := New()
	if _, _, err := s.ApplyBlock(consensus.Block{Transactions: []consensus.Transaction{cb}}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mp := NewMempool(0)
	lowFee := signedSpend(t, minerPriv, cbHash, 0, consensus.BaseReward-1, toPub)
	if _, err := mp.Admit(lowFee, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cb2 := coinbaseTx(consensus.BaseReward-1, minerPub)
	if _, _, err := s.ApplyBlock(consensus.Block{Transactions: []consensus.Transaction{cb2}}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	highFee := signedSpend(t, minerPriv, consensus.TxHash(cb2), 0, 1, toPub)
	if _, err := mp.Admit(highFee, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	selected := mp.SelectForTemplate(1)
	if len(selected) != 1 {
		t.Fatalf("expected exactly one selected transaction, got %d", len(selected))
	}
	if consensus.TxHash(selected[0]) != consensus.TxHash(highFee) {
		t.Fatalf("expected the higher fee-rate transaction to be selected first")
	}
}
