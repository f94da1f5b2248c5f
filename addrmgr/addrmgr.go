// Package addrmgr persists known peer addresses and their last-seen times
// across restarts (SPEC_FULL.md §5: a passive address cache, not NAT
// traversal or any discovery protocol). It is additive to the node's
// required flat-file blockchain persistence, not a replacement for it.
package addrmgr

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketPeers = []byte("peers_by_address")

// Manager is a bbolt-backed store of known peer addresses.
type Manager struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the address book at path.
func Open(path string) (*Manager, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("addrmgr: open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPeers)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("addrmgr: create bucket: %w", err)
	}
	return &Manager{db: db}, nil
}

// Close releases the underlying database handle.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Record stores addr with the given last-seen unix timestamp, overwriting
// any previous entry for the same address.
func (m *Manager) Record(addr string, lastSeen int64) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(lastSeen))
		return b.Put([]byte(addr), v[:])
	})
}

// Remove deletes addr from the address book, e.g. after repeated dial failures.
func (m *Manager) Remove(addr string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).Delete([]byte(addr))
	})
}

// Entry pairs an address with its last-seen timestamp.
type Entry struct {
	Address  string
	LastSeen int64
}

// All returns every known address, in no particular order.
func (m *Manager) All() ([]Entry, error) {
	var out []Entry
	err := m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		return b.ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return nil
			}
			out = append(out, Entry{
				Address:  string(k),
				LastSeen: int64(binary.BigEndian.Uint64(v)),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
