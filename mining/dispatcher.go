// Package mining implements the template dispatcher (C8, §4.8): it builds
// candidate blocks for external miners, tracks per-miner template
// subscriptions, and pushes a fresh template whenever the tip moves so a
// miner can abandon stale work.
package mining

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/engine"
	"tenet.dev/node/p2p"
	"tenet.dev/node/utxo"
)

// subscription remembers which session to push new templates to and which
// payout key to build them for.
type subscription struct {
	session *p2p.Session
	payout  crypto.PublicKey
}

// Dispatcher builds and tracks mining templates for TEMPLATE_REQ/SUBMIT
// handling (§4.8).
type Dispatcher struct {
	engine *engine.Engine
	log    *zap.Logger

	mu   sync.Mutex
	subs map[*p2p.Session]subscription
}

// NewDispatcher constructs a Dispatcher bound to e.
func NewDispatcher(e *engine.Engine, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		engine: e,
		log:    log,
		subs:   make(map[*p2p.Session]subscription),
	}
}

// Subscribe registers session to receive a pushed TEMPLATE whenever the tip
// advances, built for payout (§4.8: "a miner template subscription has no
// timeout").
func (d *Dispatcher) Subscribe(session *p2p.Session, payout crypto.PublicKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[session] = subscription{session: session, payout: payout}
}

// Unsubscribe removes session's template subscription, e.g. on disconnect.
func (d *Dispatcher) Unsubscribe(session *p2p.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, session)
}

// BuildTemplate assembles a candidate block paying payout: parent is the
// current tip, transactions are the coinbase followed by a fee-maximizing
// mempool subset, merkle root and expected target are computed, nonce
// starts at zero for the miner to iterate locally (§4.8).
func (d *Dispatcher) BuildTemplate(payout crypto.PublicKey) (consensus.Block, error) {
	tipHash, tipHeight, _ := d.engine.Tip()
	target, err := d.engine.NextExpectedTarget()
	if err != nil {
		return consensus.Block{}, err
	}

	candidateHeight := tipHeight + 1
	selected := d.engine.SelectMempoolForTemplate(consensus.MaxBlockTransactions - 1)

	var totalFees uint64
	included := make([]consensus.Transaction, 0, len(selected))
	for _, tx := range selected {
		fee, err := d.transactionFee(tx)
		if err != nil {
			// A tx whose inputs can no longer be resolved (raced out by a
			// concurrent block) is dropped from this template rather than
			// failing the whole build.
			continue
		}
		totalFees += fee
		included = append(included, tx)
	}

	coinbase := consensus.NewCoinbase(candidateHeight, consensus.BlockReward(candidateHeight)+totalFees, payout)
	txs := make([]consensus.Transaction, 0, len(included)+1)
	txs = append(txs, coinbase)
	txs = append(txs, included...)

	header := consensus.BlockHeader{
		PrevBlockHash: tipHash,
		MerkleRoot:    consensus.MerkleRoot(txs),
		Timestamp:     time.Now().Unix(),
		Target:        target,
		Nonce:         0,
	}
	return consensus.Block{Header: header, Transactions: txs}, nil
}

func (d *Dispatcher) transactionFee(tx consensus.Transaction) (uint64, error) {
	outSum, err := consensus.SumOutputs(tx.Outputs)
	if err != nil {
		return 0, err
	}
	var inSum uint64
	for _, in := range tx.Inputs {
		entry, ok := d.engine.Resolve(utxo.Outpoint{TxHash: in.PrevTxHash, Index: in.OutputIndex})
		if !ok {
			return 0, chainerr.New(chainerr.UnknownInput, "template: input no longer resolves")
		}
		inSum += entry.Output.Amount
	}
	if inSum < outSum {
		return 0, chainerr.New(chainerr.InsufficientValue, "template: negative fee")
	}
	return inSum - outSum, nil
}

// HandleSubmit validates that b still extends the current tip, rejecting a
// stale template explicitly (§4.8), then runs it through the normal
// consensus path. Acceptance triggers the same NewTip-driven template push
// every other acceptance does; HandleSubmit does not push directly.
func (d *Dispatcher) HandleSubmit(b consensus.Block) error {
	tipHash, _, _ := d.engine.Tip()
	if b.Header.PrevBlockHash != tipHash {
		return chainerr.New(chainerr.StaleTemplate, "submitted block no longer extends the tip")
	}
	_, err := d.engine.SubmitBlock(b, time.Now().Unix())
	return err
}

// RunTemplatePushes subscribes to the engine's NewTip events and pushes a
// freshly built template to every subscribed miner, until stop is closed
// (§4.8: "miners observe the new tip via a pushed TEMPLATE message").
func (d *Dispatcher) RunTemplatePushes(stop <-chan struct{}) {
	sub := d.engine.Subscribe()
	for {
		select {
		case <-stop:
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			d.pushAll()
		}
	}
}

func (d *Dispatcher) pushAll() {
	d.mu.Lock()
	targets := make([]subscription, 0, len(d.subs))
	for _, s := range d.subs {
		targets = append(targets, s)
	}
	d.mu.Unlock()

	for _, t := range targets {
		if t.session.State() != p2p.StateReady {
			d.Unsubscribe(t.session)
			continue
		}
		tmpl, err := d.BuildTemplate(t.payout)
		if err != nil {
			d.log.Debug("failed to rebuild template for subscriber", zap.Error(err))
			continue
		}
		t.session.SendTemplate(tmpl)
	}
}
