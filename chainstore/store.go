// Package chainstore maintains the one canonical chain plus validated
// alternate tips, and implements the longest-chain-rule reorg walk (§4.5).
// It owns the hash- and height-indexed chain structure; UTXO application
// during extend/reorg is delegated to the caller's *utxo.Set so that the
// engine remains the single place orchestrating C4+C5 together (§4.6).
package chainstore

import (
	"math/big"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/utxo"
)

// MaxOrphans bounds the orphan pool; the oldest entry is evicted once full
// (§9: "Bound the orphan pool (e.g., 256 entries); evict oldest").
const MaxOrphans = 256

// Outcome classifies the result of a successful Insert.
type Outcome int

const (
	// Extended means the block was appended directly to the current tip.
	Extended Outcome = iota
	// Reorged means the block caused a switch to a higher-work branch.
	Reorged
	// SideChain means the block was stored as a validated fork but did not
	// overtake the current tip's cumulative work.
	SideChain
)

func (o Outcome) String() string {
	switch o {
	case Extended:
		return "Extended"
	case Reorged:
		return "Reorged"
	case SideChain:
		return "SideChain"
	default:
		return "Unknown"
	}
}

type entry struct {
	block  consensus.Block
	height uint64
	work   *big.Int
	parent crypto.Hash
}

type orphan struct {
	block  consensus.Block
	parent crypto.Hash
}

// Store is the in-memory blockchain store (§3 "Chain entry", §4.5).
type Store struct {
	blocks map[crypto.Hash]*entry
	undo   map[crypto.Hash]*utxo.BlockUndo

	canonical []crypto.Hash // height-indexed: canonical[h] is the hash at height h
	tip       crypto.Hash
	tipWork   *big.Int

	orphans       []orphan
	orphansByHash map[crypto.Hash]bool
}

// New creates a Store seeded with genesis, applying it to set as height 0.
func New(genesis consensus.Block, set *utxo.Set) (*Store, error) {
	if err := consensus.ValidateBlockStructure(genesis); err != nil {
		return nil, err
	}
	if err := consensus.ValidateCoinbaseHeight(genesis, 0); err != nil {
		return nil, err
	}
	hash := consensus.BlockHash(genesis)
	work := consensus.BlockWork(genesis.Header.Target)

	u, _, err := set.ApplyBlock(genesis, 0)
	if err != nil {
		return nil, err
	}

	s := &Store{
		blocks:        make(map[crypto.Hash]*entry),
		undo:          make(map[crypto.Hash]*utxo.BlockUndo),
		orphansByHash: make(map[crypto.Hash]bool),
	}
	s.blocks[hash] = &entry{block: genesis, height: 0, work: work}
	s.undo[hash] = u
	s.canonical = []crypto.Hash{hash}
	s.tip = hash
	s.tipWork = work
	return s, nil
}

// TipHash returns the hash of the current canonical tip.
func (s *Store) TipHash() crypto.Hash { return s.tip }

// TipHeight returns the height of the current canonical tip.
func (s *Store) TipHeight() uint64 { return uint64(len(s.canonical) - 1) }

// TipWork returns the cumulative work of the current canonical tip.
func (s *Store) TipWork() *big.Int { return new(big.Int).Set(s.tipWork) }

// BlockByHash returns the block stored under hash, canonical or fork.
func (s *Store) BlockByHash(hash crypto.Hash) (consensus.Block, bool) {
	e, ok := s.blocks[hash]
	if !ok {
		return consensus.Block{}, false
	}
	return e.block, true
}

// BlockAt returns the canonical block at height.
func (s *Store) BlockAt(height uint64) (consensus.Block, bool) {
	if height >= uint64(len(s.canonical)) {
		return consensus.Block{}, false
	}
	return s.blocks[s.canonical[height]].block, true
}

// Contains reports whether hash names a block this store already holds,
// canonical or fork.
func (s *Store) Contains(hash crypto.Hash) bool {
	_, ok := s.blocks[hash]
	return ok
}

// NextExpectedTarget returns the target a block extending the current tip
// must carry, per the same rule Insert enforces (§4.3).
func (s *Store) NextExpectedTarget() ([32]byte, error) {
	parent := s.blocks[s.tip]
	height := parent.height + 1
	var windowFirst int64
	if height > 0 && height%consensus.DifficultyWindow == 0 {
		if wh, ok := s.ancestorAtHeight(s.tip, height-consensus.DifficultyWindow); ok {
			windowFirst = s.blocks[wh].block.Header.Timestamp
		}
	}
	return consensus.ExpectedTarget(height, parent.block.Header.Target, windowFirst, parent.block.Header.Timestamp)
}

// Insert validates and inserts block (§4.5). now is the receiver's wall
// clock in unix seconds, used for the future-drift timestamp check (§4.3).
// On success it returns the outcome along with the blocks that were applied
// to, and reverted from, the UTXO set as a result (empty for SideChain).
func (s *Store) Insert(block consensus.Block, set *utxo.Set, now int64) (Outcome, []consensus.Block, []consensus.Block, error) {
	if err := consensus.ValidateBlockStructure(block); err != nil {
		return 0, nil, nil, err
	}

	hash := consensus.BlockHash(block)
	if s.Contains(hash) {
		return 0, nil, nil, chainerr.New(chainerr.AlreadyKnown, "block already known")
	}

	parent, ok := s.blocks[block.Header.PrevBlockHash]
	if !ok {
		s.addOrphan(block)
		return 0, nil, nil, chainerr.New(chainerr.UnknownParent, "parent block not found")
	}

	height := parent.height + 1
	if err := consensus.ValidateCoinbaseHeight(block, height); err != nil {
		return 0, nil, nil, err
	}

	var windowFirst int64
	if height > 0 && height%consensus.DifficultyWindow == 0 {
		if wh, ok := s.ancestorAtHeight(block.Header.PrevBlockHash, height-consensus.DifficultyWindow); ok {
			windowFirst = s.blocks[wh].block.Header.Timestamp
		}
	}
	expected, err := consensus.ExpectedTarget(height, parent.block.Header.Target, windowFirst, parent.block.Header.Timestamp)
	if err != nil {
		return 0, nil, nil, err
	}
	if block.Header.Target != expected {
		return 0, nil, nil, chainerr.New(chainerr.BadTarget, "target does not match expected difficulty")
	}

	preceding := s.precedingTimestamps(block.Header.PrevBlockHash, consensus.MedianTimeSpan)
	if err := consensus.ValidateTimestamp(block.Header.Timestamp, preceding, now); err != nil {
		return 0, nil, nil, err
	}

	work := new(big.Int).Add(parent.work, consensus.BlockWork(block.Header.Target))
	s.blocks[hash] = &entry{block: block, height: height, work: work, parent: block.Header.PrevBlockHash}

	switch {
	case block.Header.PrevBlockHash == s.tip:
		u, _, err := set.ApplyBlock(block, height)
		if err != nil {
			delete(s.blocks, hash)
			return 0, nil, nil, err
		}
		s.undo[hash] = u
		s.canonical = append(s.canonical, hash)
		s.tip = hash
		s.tipWork = work
		return Extended, []consensus.Block{block}, nil, nil

	case work.Cmp(s.tipWork) > 0:
		applied, reverted, err := s.reorgTo(hash, set)
		if err != nil {
			delete(s.blocks, hash)
			return 0, nil, nil, err
		}
		return Reorged, applied, reverted, nil

	default:
		// Ties prefer the existing tip (first-seen wins) to suppress
		// oscillation (§4.5).
		return SideChain, nil, nil, nil
	}
}

// reorgTo switches the canonical chain to newTip, reverting the displaced
// branch and applying the new one. If any forward application fails, the
// original tip is fully restored before returning the error (§4.5, §9).
func (s *Store) reorgTo(newTip crypto.Hash, set *utxo.Set) ([]consensus.Block, []consensus.Block, error) {
	lca := s.commonAncestor(s.tip, newTip)

	revertHashes := s.pathToAncestor(s.tip, lca)
	forwardHashes := reverseHashes(s.pathToAncestor(newTip, lca))

	var reverted []consensus.Block
	for _, h := range revertHashes {
		e := s.blocks[h]
		set.RevertBlock(e.block, s.undo[h])
		reverted = append(reverted, e.block)
	}

	var applied []consensus.Block
	var appliedSoFar []crypto.Hash
	for _, h := range forwardHashes {
		e := s.blocks[h]
		u, _, err := set.ApplyBlock(e.block, e.height)
		if err != nil {
			s.restoreAfterFailedReorg(set, appliedSoFar, revertHashes)
			return nil, nil, err
		}
		s.undo[h] = u
		appliedSoFar = append(appliedSoFar, h)
		applied = append(applied, e.block)
	}

	lcaHeight := s.blocks[lca].height
	s.canonical = append(s.canonical[:lcaHeight+1:lcaHeight+1], forwardHashes...)
	s.tip = newTip
	s.tipWork = s.blocks[newTip].work
	return applied, reverted, nil
}

// restoreAfterFailedReorg undoes a partially-applied forward walk and
// re-applies the original (displaced) branch, leaving the UTXO set exactly
// as it was before reorgTo started (§4.5: "fully restore the original
// tip"). Every block touched here validated successfully moments ago under
// an identical context, so a failure in this path means the in-memory state
// has been corrupted rather than that a consensus rule was violated.
func (s *Store) restoreAfterFailedReorg(set *utxo.Set, appliedSoFar, revertHashes []crypto.Hash) {
	for i := len(appliedSoFar) - 1; i >= 0; i-- {
		h := appliedSoFar[i]
		e := s.blocks[h]
		set.RevertBlock(e.block, s.undo[h])
	}
	for i := len(revertHashes) - 1; i >= 0; i-- {
		h := revertHashes[i]
		e := s.blocks[h]
		u, _, err := set.ApplyBlock(e.block, e.height)
		if err != nil {
			panic("chainstore: failed to restore original tip after aborted reorg: " + err.Error())
		}
		s.undo[h] = u
	}
}

func reverseHashes(in []crypto.Hash) []crypto.Hash {
	out := make([]crypto.Hash, len(in))
	for i, h := range in {
		out[len(in)-1-i] = h
	}
	return out
}

// commonAncestor returns the lowest common ancestor of a and b by climbing
// to equal height and then walking both back together.
func (s *Store) commonAncestor(a, b crypto.Hash) crypto.Hash {
	ea, eb := s.blocks[a], s.blocks[b]
	for ea.height > eb.height {
		a = ea.parent
		ea = s.blocks[a]
	}
	for eb.height > ea.height {
		b = eb.parent
		eb = s.blocks[b]
	}
	for a != b {
		a = ea.parent
		ea = s.blocks[a]
		b = eb.parent
		eb = s.blocks[b]
	}
	return a
}

// pathToAncestor returns the chain of hashes from from down to (but
// excluding) ancestor, ordered from from back toward ancestor.
func (s *Store) pathToAncestor(from, ancestor crypto.Hash) []crypto.Hash {
	var path []crypto.Hash
	h := from
	for h != ancestor {
		path = append(path, h)
		h = s.blocks[h].parent
	}
	return path
}

func (s *Store) ancestorAtHeight(from crypto.Hash, height uint64) (crypto.Hash, bool) {
	e, ok := s.blocks[from]
	if !ok {
		return crypto.Hash{}, false
	}
	for e.height > height {
		from = e.parent
		e, ok = s.blocks[from]
		if !ok {
			return crypto.Hash{}, false
		}
	}
	if e.height != height {
		return crypto.Hash{}, false
	}
	return from, true
}

// precedingTimestamps returns up to n timestamps walking back from fromHash,
// in chronological order (oldest first).
func (s *Store) precedingTimestamps(fromHash crypto.Hash, n int) []int64 {
	out := make([]int64, 0, n)
	h := fromHash
	for i := 0; i < n; i++ {
		e, ok := s.blocks[h]
		if !ok {
			break
		}
		out = append(out, e.block.Header.Timestamp)
		if e.height == 0 {
			break
		}
		h = e.parent
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) addOrphan(block consensus.Block) {
	hash := consensus.BlockHash(block)
	if s.orphansByHash[hash] {
		return
	}
	if len(s.orphans) >= MaxOrphans {
		oldest := s.orphans[0]
		delete(s.orphansByHash, consensus.BlockHash(oldest.block))
		s.orphans = s.orphans[1:]
	}
	s.orphans = append(s.orphans, orphan{block: block, parent: block.Header.PrevBlockHash})
	s.orphansByHash[hash] = true
}

// TakeOrphansFor pops and returns every orphan waiting on parent, so the
// caller can resubmit them through Insert now that their parent has
// arrived (§9).
func (s *Store) TakeOrphansFor(parent crypto.Hash) []consensus.Block {
	var out []consensus.Block
	remaining := s.orphans[:0]
	for _, o := range s.orphans {
		if o.parent == parent {
			out = append(out, o.block)
			delete(s.orphansByHash, consensus.BlockHash(o.block))
		} else {
			remaining = append(remaining, o)
		}
	}
	s.orphans = remaining
	return out
}
