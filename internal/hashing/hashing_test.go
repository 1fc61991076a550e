package hashing

import (
	"encoding/hex"
	"testing"
)

func TestKeccak256TwoHashDigestLength(t *testing.T) {
	// Two-hash case from spec: Keccak(h0||h1)[0..32].
	h0 := Keccak256([]byte("a"))
	h1 := Keccak256([]byte("b"))
	got := Keccak256(h0[:], h1[:])
	if len(got) != 32 {
		t.Fatalf("expected 32-byte digest, got %d", len(got))
	}
}

func TestMockHasherReferenceVectors(t *testing.T) {
	m := NewMockHasher()

	h, err := m.Hash([]byte{}, Cryptonight)
	if err != nil {
		t.Fatal(err)
	}
	want := "eb14e8a833fac6fe9a43b57b336789c46ffe93f2868452240720607b14387e11"
	if hex.EncodeToString(h[:]) != want {
		t.Errorf("cryptonight empty vector = %x, want %s", h, want)
	}

	h, err = m.Hash([]byte{}, CryptonightLite)
	if err != nil {
		t.Fatal(err)
	}
	want = "4cec4a947f670ffdd591f89cdb56ba066c31cd093d1d4d7ce15d33704c090611"
	if hex.EncodeToString(h[:]) != want {
		t.Errorf("cryptonight_lite empty vector = %x, want %s", h, want)
	}

	testStr, _ := hex.DecodeString("5468697320697320612074657374")
	h, err = m.Hash(testStr, CryptonightLite)
	if err != nil {
		t.Fatal(err)
	}
	want = "88e5e684db178c825e4ce3809ccc1cda79cc2adb4406bff93debeaf20a8bebd9"
	if hex.EncodeToString(h[:]) != want {
		t.Errorf("cryptonight_lite test-string vector = %x, want %s", h, want)
	}
}

func TestMockHasherFallbackIsDeterministic(t *testing.T) {
	m := NewMockHasher()
	blob := []byte{1, 2, 3, 4}
	h1, err := m.Hash(blob, Cryptonight)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := m.Hash(blob, Cryptonight)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("expected deterministic fallback hash for repeated input")
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant("cryptonight"); err != nil || v != Cryptonight {
		t.Errorf("ParseVariant(cryptonight) = %v, %v", v, err)
	}
	if v, err := ParseVariant("cryptonight_lite"); err != nil || v != CryptonightLite {
		t.Errorf("ParseVariant(cryptonight_lite) = %v, %v", v, err)
	}
	if _, err := ParseVariant("bogus"); err == nil {
		t.Error("expected error for unknown variant")
	}
}
