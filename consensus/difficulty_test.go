package consensus

import (
	"math/big"
	"testing"
)

func TestRetargetTarget_ClampUpper(t *testing.T) {
	var prev [32]byte
	prev[16] = 0x01 // nonzero, small value so 4x doesn't overflow

	// actual much larger than expected would normally raise the target far
	// past 4x; it must clamp there instead.
	got, err := RetargetTarget(prev, 1000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Lsh(new(big.Int).SetBytes(prev[:]), 2)
	if new(big.Int).SetBytes(got[:]).Cmp(want) != 0 {
		t.Fatalf("expected clamp to 4x previous target")
	}
}

func TestRetargetTarget_ClampLower(t *testing.T) {
	var prev [32]byte
	prev[16] = 0x10

	got, err := RetargetTarget(prev, 1, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Rsh(new(big.Int).SetBytes(prev[:]), 2)
	if new(big.Int).SetBytes(got[:]).Cmp(want) != 0 {
		t.Fatalf("expected clamp to 1/4x previous target")
	}
}

func TestExpectedTarget_InheritsBetweenWindows(t *testing.T) {
	var parent [32]byte
	parent[16] = 0x42
	got, err := ExpectedTarget(7, parent, 0, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != parent {
		t.Fatalf("non-retarget height should inherit the parent target unchanged")
	}
}

func TestExpectedTarget_Genesis(t *testing.T) {
	got, err := ExpectedTarget(0, [32]byte{}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != GenesisTarget {
		t.Fatalf("height 0 must use the fixed genesis target")
	}
}

func TestValidateTimestamp_MustExceedMedian(t *testing.T) {
	history := []int64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	if err := ValidateTimestamp(105, history, 200); err == nil {
		t.Fatalf("expected rejection: timestamp does not exceed median time past")
	}
	if err := ValidateTimestamp(111, history, 200); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidateTimestamp_FutureDrift(t *testing.T) {
	now := int64(1_000_000)
	if err := ValidateTimestamp(now+MaxFutureDriftSeconds+1, nil, now); err == nil {
		t.Fatalf("expected rejection: timestamp too far in the future")
	}
	if err := ValidateTimestamp(now+MaxFutureDriftSeconds, nil, now); err != nil {
		t.Fatalf("unexpected rejection at the boundary: %v", err)
	}
}
