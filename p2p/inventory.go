package p2p

import "tenet.dev/node/crypto"

// inventorySize bounds the recent-inventory ring buffer used to suppress
// gossip loops (§4.7: "per-peer deduplication is maintained by a recent-
// inventory ring buffer").
const inventorySize = 4096

// inventory is a fixed-capacity, insertion-ordered set of recently seen
// hashes. It answers "have we already told/heard from this peer about X"
// without growing without bound.
type inventory struct {
	seen  map[crypto.Hash]struct{}
	order []crypto.Hash
	next  int
}

func newInventory() *inventory {
	return &inventory{
		seen:  make(map[crypto.Hash]struct{}, inventorySize),
		order: make([]crypto.Hash, 0, inventorySize),
	}
}

// Has reports whether h was recorded recently.
func (inv *inventory) Has(h crypto.Hash) bool {
	_, ok := inv.seen[h]
	return ok
}

// Record marks h as seen, evicting the oldest entry if the buffer is full.
func (inv *inventory) Record(h crypto.Hash) {
	if inv.Has(h) {
		return
	}
	if len(inv.order) < inventorySize {
		inv.order = append(inv.order, h)
		inv.seen[h] = struct{}{}
		return
	}
	evict := inv.order[inv.next]
	delete(inv.seen, evict)
	inv.order[inv.next] = h
	inv.seen[h] = struct{}{}
	inv.next = (inv.next + 1) % inventorySize
}
