package consensus

import (
	"bytes"

	"tenet.dev/node/chainerr"
)

// PowPasses reports whether h, interpreted as a big-endian unsigned 256-bit
// integer, is strictly less than target (§4.3).
func PowPasses(h [32]byte, target [32]byte) bool {
	return bytes.Compare(h[:], target[:]) < 0
}

// CheckPow validates the header's proof-of-work (§4.3). It returns a
// chainerr.BadPoW error rather than a bool so callers can propagate it
// directly through the validation pipeline (§4.6).
func CheckPow(h BlockHeader) error {
	digest := HeaderHash(h)
	if !PowPasses([32]byte(digest), h.Target) {
		return chainerr.New(chainerr.BadPoW, "header hash does not satisfy target")
	}
	return nil
}
