// Package engine is the single authoritative serialization point over the
// chain store, UTXO set and mempool (§4.6). Every mutation to C4/C5 passes
// through here under one exclusive lock, following the same sync.RWMutex
// ownership pattern the teacher's node package uses for its chain state.
package engine

import (
	"math/big"
	"sync"

	"go.uber.org/zap"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/chainstore"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/utxo"
)

// NewTipEvent is published whenever the canonical tip changes (§4.6).
type NewTipEvent struct {
	Hash   crypto.Hash
	Height uint64
	Work   *big.Int
	Epoch  uint64
}

// Outcome mirrors chainstore.Outcome for callers that only depend on the
// engine package.
type Outcome = chainstore.Outcome

const (
	Extended  = chainstore.Extended
	Reorged   = chainstore.Reorged
	SideChain = chainstore.SideChain
)

// subscriberQueueLen bounds each NewTip subscriber channel; a slow
// subscriber drops events rather than blocking block acceptance.
const subscriberQueueLen = 16

// Engine owns the chain store, UTXO set and mempool and is the only
// component allowed to mutate any of them (§5, §9).
type Engine struct {
	mu sync.RWMutex

	store   *chainstore.Store
	utxoSet *utxo.Set
	mempool *utxo.Mempool

	epoch uint64

	subsMu sync.Mutex
	subs   []chan NewTipEvent

	log *zap.Logger
}

// New constructs an Engine seeded with genesis.
func New(genesis consensus.Block, mempoolMaxBytes int, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	set := utxo.New()
	store, err := chainstore.New(genesis, set)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:   store,
		utxoSet: set,
		mempool: utxo.NewMempool(mempoolMaxBytes),
		log:     log,
	}, nil
}

// Tip returns the current canonical tip (§4.6).
func (e *Engine) Tip() (crypto.Hash, uint64, *big.Int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.TipHash(), e.store.TipHeight(), e.store.TipWork()
}

// Epoch returns the current template epoch (§4.8).
func (e *Engine) Epoch() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.epoch
}

// Subscribe registers a bounded channel that receives every future NewTip
// event. Callers that stop draining it simply miss events past the bound;
// the engine never blocks on a subscriber.
func (e *Engine) Subscribe() <-chan NewTipEvent {
	ch := make(chan NewTipEvent, subscriberQueueLen)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

func (e *Engine) publish(ev NewTipEvent) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.log.Warn("dropping NewTip event for slow subscriber")
		}
	}
}

// SubmitBlock validates and attempts to insert block, recursively promoting
// any orphans that become connectable as a result, and returns the outcome
// for the directly-submitted block (§4.6). On acceptance it updates the
// mempool to match the new tip and publishes a NewTip event.
func (e *Engine) SubmitBlock(block consensus.Block, now int64) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome, err := e.insertLocked(block, now)
	if err != nil {
		return 0, err
	}
	e.promoteOrphansLocked(consensus.BlockHash(block), now)
	return outcome, nil
}

func (e *Engine) insertLocked(block consensus.Block, now int64) (Outcome, error) {
	outcome, applied, reverted, err := e.store.Insert(block, e.utxoSet, now)
	if err != nil {
		return 0, err
	}

	for _, b := range applied {
		e.mempool.EvictForBlock(b)
	}
	for i := len(reverted) - 1; i >= 0; i-- {
		e.mempool.ReAdmit(reverted[i].Transactions, e.utxoSet)
	}

	if outcome == Extended || outcome == Reorged {
		e.epoch++
		hash, height, work := e.store.TipHash(), e.store.TipHeight(), e.store.TipWork()
		e.publish(NewTipEvent{Hash: hash, Height: height, Work: work, Epoch: e.epoch})
	}
	return outcome, nil
}

func (e *Engine) promoteOrphansLocked(parent crypto.Hash, now int64) {
	queue := e.store.TakeOrphansFor(parent)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		outcome, err := e.insertLocked(next, now)
		if err != nil {
			if !chainerr.Recoverable(chainErrKind(err)) {
				e.log.Debug("discarding orphan that failed validation on promotion", zap.Error(err))
			}
			continue
		}
		if outcome == Extended || outcome == Reorged {
			queue = append(queue, e.store.TakeOrphansFor(consensus.BlockHash(next))...)
		}
	}
}

func chainErrKind(err error) chainerr.Kind {
	ce, ok := err.(*chainerr.Error)
	if !ok {
		return chainerr.IO
	}
	return ce.Kind
}

// SubmitTransaction admits tx to the mempool (§4.6).
func (e *Engine) SubmitTransaction(tx consensus.Transaction) (crypto.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mempool.Admit(tx, e.utxoSet)
}

// Resolve looks up a UTXO entry under a shared lock.
func (e *Engine) Resolve(op utxo.Outpoint) (utxo.Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.utxoSet.Resolve(op)
}

// NextExpectedTarget returns the target a block extending the current tip
// must carry (§4.3, used by the template dispatcher).
func (e *Engine) NextExpectedTarget() ([32]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.NextExpectedTarget()
}

// SelectMempoolForTemplate returns a fee-maximizing subset of the mempool
// under a shared lock (§4.8).
func (e *Engine) SelectMempoolForTemplate(maxCount int) []consensus.Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mempool.SelectForTemplate(maxCount)
}

// AllMempoolTransactions returns every pending mempool transaction, for
// GET_MEMPOOL responses (§4.7).
func (e *Engine) AllMempoolTransactions() []consensus.Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mempool.All()
}

// BlockByHash returns a previously accepted block, canonical or fork.
func (e *Engine) BlockByHash(hash crypto.Hash) (consensus.Block, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.BlockByHash(hash)
}

// BlockAt returns the canonical block at height.
func (e *Engine) BlockAt(height uint64) (consensus.Block, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.BlockAt(height)
}
