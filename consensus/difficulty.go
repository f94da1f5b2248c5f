package consensus

import (
	"math/big"
	"sort"

	"tenet.dev/node/chainerr"
)

// RetargetTarget rescales prevTarget by actualElapsed/expectedElapsed,
// clamped to [1/4x, 4x] of prevTarget (§4.3). All arithmetic uses arbitrary
// precision; the result always fits back into 32 bytes.
func RetargetTarget(prevTarget [32]byte, actualElapsed, expectedElapsed uint64) ([32]byte, error) {
	old := new(big.Int).SetBytes(prevTarget[:])
	if old.Sign() == 0 {
		return [32]byte{}, chainerr.New(chainerr.BadTarget, "retarget: previous target is zero")
	}
	if expectedElapsed == 0 {
		return [32]byte{}, chainerr.New(chainerr.BadTarget, "retarget: expected elapsed is zero")
	}
	if actualElapsed == 0 {
		actualElapsed = 1
	}

	next := new(big.Int).Mul(old, new(big.Int).SetUint64(actualElapsed))
	next.Div(next, new(big.Int).SetUint64(expectedElapsed))

	lower := new(big.Int).Rsh(old, 2)
	if lower.Sign() == 0 {
		lower.SetInt64(1)
	}
	upper := new(big.Int).Lsh(old, 2)

	if next.Cmp(lower) < 0 {
		next = lower
	}
	if next.Cmp(upper) > 0 {
		next = upper
	}

	return bytes32FromBig(next)
}

func bytes32FromBig(x *big.Int) ([32]byte, error) {
	var out [32]byte
	if x.Sign() < 0 {
		return out, chainerr.New(chainerr.BadTarget, "retarget: negative result")
	}
	b := x.Bytes()
	if len(b) > 32 {
		return out, chainerr.New(chainerr.BadTarget, "retarget: result overflows 256 bits")
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// ExpectedTarget returns the target height must carry (§4.3). Every
// DifficultyWindow blocks the target is rescaled from the elapsed time over
// the window; otherwise it is inherited unchanged from the parent.
func ExpectedTarget(height uint64, parentTarget [32]byte, windowFirstTimestamp, windowLastTimestamp int64) ([32]byte, error) {
	if height == 0 {
		return GenesisTarget, nil
	}
	if height%DifficultyWindow != 0 {
		return parentTarget, nil
	}
	var actual uint64
	if windowLastTimestamp > windowFirstTimestamp {
		actual = uint64(windowLastTimestamp - windowFirstTimestamp)
	} else {
		actual = 1
	}
	expected := uint64(TargetBlockIntervalSeconds) * uint64(DifficultyWindow)
	return RetargetTarget(parentTarget, actual, expected)
}

// MedianTimestamp returns the median of timestamps. The slice is copied
// before sorting so callers' ordering is undisturbed.
func MedianTimestamp(timestamps []int64) int64 {
	if len(timestamps) == 0 {
		return 0
	}
	cp := make([]int64, len(timestamps))
	copy(cp, timestamps)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	return cp[len(cp)/2]
}

// ValidateTimestamp enforces §4.3: a new block's timestamp must strictly
// exceed the median of the previous (up to MedianTimeSpan) timestamps and
// must not sit more than MaxFutureDriftSeconds ahead of now.
func ValidateTimestamp(ts int64, precedingTimestamps []int64, now int64) error {
	window := precedingTimestamps
	if len(window) > MedianTimeSpan {
		window = window[len(window)-MedianTimeSpan:]
	}
	if len(window) > 0 {
		mtp := MedianTimestamp(window)
		if ts <= mtp {
			return chainerr.New(chainerr.BadTimestamp, "timestamp does not exceed median time past")
		}
	}
	if ts > now+MaxFutureDriftSeconds {
		return chainerr.New(chainerr.BadTimestamp, "timestamp too far in the future")
	}
	return nil
}
