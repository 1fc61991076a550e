package hashing

import (
	"encoding/hex"
	"fmt"
)

// Variant selects between the two CryptoNight flavors this pool supports.
type Variant int

const (
	Cryptonight Variant = iota
	CryptonightLite
)

func (v Variant) String() string {
	switch v {
	case Cryptonight:
		return "cryptonight"
	case CryptonightLite:
		return "cryptonight_lite"
	default:
		return "unknown"
	}
}

// ParseVariant maps a config string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "cryptonight":
		return Cryptonight, nil
	case "cryptonight_lite":
		return CryptonightLite, nil
	default:
		return 0, fmt.Errorf("hashing: unknown hash_type %q", s)
	}
}

// Hasher computes the CryptoNight family proof-of-work hash of a blob. The
// scratchpad hash itself is an opaque, AES-hardware-accelerated primitive;
// this interface only fixes its input/output contract so the rest of the
// pool never depends on a concrete implementation.
type Hasher interface {
	Hash(blob []byte, variant Variant) ([32]byte, error)
}

// MockHasher is a test double pre-seeded with the known reference vectors.
// It also supports registering additional fixed blob->hash mappings, and
// falls back to a cheap, deterministic (non-cryptographic) stand-in hash
// for any blob it hasn't been told about, so tests that only care about
// "submit gets *a* hash back" don't need to enumerate every input.
type MockHasher struct {
	vectors map[string][32]byte
}

// NewMockHasher returns a MockHasher seeded with the empty-input vectors
// for both variants and the CryptoNight-Lite ASCII test string, matching
// the reference implementation's own unit tests.
func NewMockHasher() *MockHasher {
	m := &MockHasher{vectors: make(map[string][32]byte)}

	m.Set([]byte{}, Cryptonight, mustHex("eb14e8a833fac6fe9a43b57b336789c46ffe93f2868452240720607b14387e11"))
	m.Set([]byte{}, CryptonightLite, mustHex("4cec4a947f670ffdd591f89cdb56ba066c31cd093d1d4d7ce15d33704c090611"))
	testStr, _ := hex.DecodeString("5468697320697320612074657374")
	m.Set(testStr, CryptonightLite, mustHex("88e5e684db178c825e4ce3809ccc1cda79cc2adb4406bff93debeaf20a8bebd9"))

	return m
}

func mustHex(s string) [32]byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

func key(blob []byte, variant Variant) string {
	return variant.String() + ":" + hex.EncodeToString(blob)
}

// Set registers a fixed result for a given (blob, variant) pair.
func (m *MockHasher) Set(blob []byte, variant Variant, hash [32]byte) {
	m.vectors[key(blob, variant)] = hash
}

// Hash implements Hasher.
func (m *MockHasher) Hash(blob []byte, variant Variant) ([32]byte, error) {
	if h, ok := m.vectors[key(blob, variant)]; ok {
		return h, nil
	}
	// Deterministic stand-in: not cryptographically meaningful, but stable
	// across calls so duplicate-nonce and achieved-difficulty tests that
	// don't target a specific vector still behave consistently.
	return Keccak256(blob, []byte(variant.String())), nil
}
