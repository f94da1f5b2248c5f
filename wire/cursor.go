// Package wire implements the deterministic binary encoding shared by every
// entity in the node (§4.2): fixed-width little-endian integers, 32-bit
// length-prefixed sequences, inlined fixed-width byte strings, and 1-byte
// discriminant tagged unions. Every decode failure returns a *chainerr.Error
// of kind Malformed.
package wire

import (
	"encoding/binary"

	"tenet.dev/node/chainerr"
)

// Cursor reads canonically-encoded values from a byte slice, tracking
// position and refusing to read past the end.
type Cursor struct {
	b   []byte
	pos int
}

// NewCursor wraps b for sequential reading from offset 0.
func NewCursor(b []byte) *Cursor {
	return &Cursor{b: b}
}

// Remaining reports the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

// Done reports whether the cursor has consumed every byte. Decoders that
// expect a single root value call this after decoding to reject trailing
// garbage (§4.2).
func (c *Cursor) Done() bool {
	return c.pos >= len(c.b)
}

func (c *Cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, chainerr.New(chainerr.Malformed, "truncated input")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

// ReadU8 reads a single byte.
func (c *Cursor) ReadU8() (byte, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU32 reads a 4-byte little-endian unsigned integer.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads an 8-byte little-endian unsigned integer.
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI64 reads an 8-byte little-endian signed integer (used for timestamps).
func (c *Cursor) ReadI64() (int64, error) {
	u, err := c.ReadU64()
	return int64(u), err
}

// ReadFixed reads exactly n bytes, used for fixed-width inlined byte strings
// (hashes, public keys, signatures) which carry no length prefix.
func (c *Cursor) ReadFixed(n int) ([]byte, error) {
	return c.readExact(n)
}

// ReadFixed32 reads a 32-byte fixed-width field.
func (c *Cursor) ReadFixed32() ([32]byte, error) {
	var out [32]byte
	b, err := c.readExact(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// ReadFixed64 reads a 64-byte fixed-width field.
func (c *Cursor) ReadFixed64() ([64]byte, error) {
	var out [64]byte
	b, err := c.readExact(64)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// ReadSeqLen reads the 32-bit unsigned element count prefixing a sequence
// and rejects counts that could not possibly fit in the remaining bytes,
// guarding against a hostile huge-count header causing an oversized
// allocation downstream (§4.2: "length prefix exceeding remaining bytes").
func (c *Cursor) ReadSeqLen(minElemSize int) (uint32, error) {
	n, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	if minElemSize > 0 && uint64(n)*uint64(minElemSize) > uint64(c.Remaining()) {
		return 0, chainerr.New(chainerr.Malformed, "sequence length exceeds remaining bytes")
	}
	return n, nil
}

// Writer accumulates a canonical byte encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer, optionally pre-sized.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteU8 appends a single byte.
func (w *Writer) WriteU8(v byte) {
	w.buf = append(w.buf, v)
}

// WriteU32 appends v as 4-byte little-endian.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteU64 appends v as 8-byte little-endian.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteI64 appends v as 8-byte little-endian signed (timestamps).
func (w *Writer) WriteI64(v int64) {
	w.WriteU64(uint64(v))
}

// WriteFixed appends b verbatim, with no length prefix.
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteSeqLen writes the 32-bit element count prefixing a sequence.
func (w *Writer) WriteSeqLen(n int) {
	w.WriteU32(uint32(n))
}
