package util

import "testing"

func TestHexRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"00",
		"deadbeef",
		"2d0ad2566627b50cd45125e89e963433b212b368cd2d91662c44813ba9ec90c2",
	}
	for _, c := range cases {
		b, err := HexToBytes(c)
		if err != nil {
			t.Fatalf("HexToBytes(%q): %v", c, err)
		}
		if got := BytesToHex(b); got != c {
			t.Errorf("BytesToHex(HexToBytes(%q)) = %q, want %q", c, got, c)
		}
	}
}

func TestHexToBytesInvalid(t *testing.T) {
	if _, err := HexToBytes("zz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if _, err := HexToBytes("abc"); err == nil {
		t.Fatal("expected error for odd-length hex")
	}
}
