package p2p

import (
	"encoding/binary"
	"io"

	"tenet.dev/node/chainerr"
)

// MaxFrameBytes bounds a single frame's declared length; a peer claiming a
// larger frame is disconnected before its payload is read (§6).
const MaxFrameBytes = 8 << 20

// ReadFrame reads one length-prefixed frame from r: a 4-byte big-endian
// length followed by that many payload bytes (§6).
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, chainerr.Newf(chainerr.ProtocolViolation, "frame length %d exceeds maximum", n)
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes payload to w prefixed by its 4-byte big-endian length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameBytes {
		return chainerr.Newf(chainerr.ProtocolViolation, "frame length %d exceeds maximum", len(payload))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}
