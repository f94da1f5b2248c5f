// Package persistence implements the single append-only blockchain file
// (§4.9, §6): a concatenation of canonically serialized blocks in accepted
// order, starting with genesis, replayed in full on load. There is no
// header and no index.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/wire"
)

// maxAppendRetries is how many times a failed append is retried before the
// failure escalates to fatal (§7: "retried twice then escalate to fatal,
// because the in-memory state would diverge from disk").
const maxAppendRetries = 2

// File is the append-only blockchain file.
type File struct {
	path string
}

// Open returns a File bound to path. The file is created on first Append or
// Rewrite if it does not already exist.
func Open(path string) *File {
	return &File{path: path}
}

// Load reads every block in the file in order (§4.9). A missing file loads
// as an empty chain (fresh start); any other read or decode failure is
// returned wrapped as a chainerr IO error, with the cause preserved.
func (f *File) Load() ([]consensus.Block, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, chainerr.Wrap(chainerr.IO, "persistence: read blockchain file", err)
	}

	c := wire.NewCursor(raw)
	var blocks []consensus.Block
	for !c.Done() {
		b, err := consensus.DecodeBlock(c)
		if err != nil {
			return nil, chainerr.Wrap(chainerr.IO, "persistence: decode blockchain file", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Append serializes block and appends it to the file (§4.9). A write
// failure is retried up to maxAppendRetries times before it is returned as
// a fatal error: by that point the engine's in-memory state has already
// diverged from what is on disk (§7).
func (f *File) Append(block consensus.Block) error {
	raw := consensus.SerializeBlock(block)

	var lastErr error
	for attempt := 0; attempt <= maxAppendRetries; attempt++ {
		file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			lastErr = err
			continue
		}
		_, werr := file.Write(raw)
		cerr := file.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		lastErr = werr
		if lastErr == nil {
			lastErr = cerr
		}
	}
	return chainerr.Wrap(chainerr.IO, fmt.Sprintf("persistence: append failed after %d retries", maxAppendRetries), lastErr)
}

// RewriteFull atomically replaces the file's contents with the canonical
// serialization of blocks, in order (§4.9: "rewrite the file from the
// common ancestor forward ... atomicity by write-to-temp + rename"). The
// caller passes the full canonical chain from genesis; rewriting the whole
// chain rather than only the suffix after the common ancestor is the
// simplest correct choice the spec explicitly allows.
func (f *File) RewriteFull(blocks []consensus.Block) error {
	w := wire.NewWriter(4096 * len(blocks))
	for _, b := range blocks {
		consensus.EncodeBlock(w, b)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", f.path, os.Getpid())
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return chainerr.Wrap(chainerr.IO, "persistence: create blockchain file directory", err)
	}
	if err := os.WriteFile(tmpPath, w.Bytes(), 0o644); err != nil {
		return chainerr.Wrap(chainerr.IO, "persistence: write temp blockchain file", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return chainerr.Wrap(chainerr.IO, "persistence: rename temp blockchain file", err)
	}
	return nil
}
