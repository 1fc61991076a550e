package minersession

import (
	"math/big"
	"testing"
)

func TestTargetHexReferenceVectors(t *testing.T) {
	cases := []struct {
		difficulty uint64
		want       string
	}{
		{5000, "711b0d00"},
		{20000, "dc460300"},
	}
	for _, c := range cases {
		got, err := TargetHex(c.difficulty)
		if err != nil {
			t.Fatalf("TargetHex(%d): %v", c.difficulty, err)
		}
		if got != c.want {
			t.Errorf("TargetHex(%d) = %q, want %q", c.difficulty, got, c.want)
		}
	}
}

func TestTargetHexRejectsZero(t *testing.T) {
	if _, err := TargetHex(0); err == nil {
		t.Error("expected error for zero difficulty")
	}
}

// TestTargetMagnitudeStrictlyDecreasing checks the underlying property
// target_hex's truncated 3-byte encoding is derived from: T = floor(M/d)
// must be strictly decreasing in d. The truncated hex encoding itself is
// not a faithful ordering (it keeps only the 3 most significant bytes, so
// two T values with different byte lengths can't be compared by those 3
// bytes alone), so this exercises the full-precision value directly.
func TestTargetMagnitudeStrictlyDecreasing(t *testing.T) {
	var prev *big.Int
	for _, d := range []uint64{100, 1000, 5000, 20000, 1_000_000} {
		T := new(big.Int).Div(maxTarget, new(big.Int).SetUint64(d))
		if prev != nil && T.Cmp(prev) >= 0 {
			t.Errorf("difficulty %d: target %s did not decrease from previous %s", d, T, prev)
		}
		prev = T
	}
}

func TestTargetHexShape(t *testing.T) {
	for _, d := range []uint64{1, 100, 5000, 20000, 1_000_000} {
		got, err := TargetHex(d)
		if err != nil {
			t.Fatalf("TargetHex(%d): %v", d, err)
		}
		if len(got) != 8 {
			t.Errorf("TargetHex(%d) = %q, want 8 hex chars", d, got)
		}
		if got[6:] != "00" {
			t.Errorf("TargetHex(%d) = %q, want trailing \"00\"", d, got)
		}
	}
}
