// Package hashing wraps the hash primitives this pool depends on. Keccak-256
// is a concrete, in-scope primitive (CryptoNote's Merkle tree and miner-tx
// hash both use it). CryptoNight/CryptoNight-Lite, the memory-hard
// proof-of-work hash, is treated as an opaque primitive behind the Hasher
// interface: its AES-accelerated scratchpad implementation is out of scope.
// The only Hasher in this repository is MockHasher (a table of reference
// vectors); internal/app wires it into every Stratum listener, and the
// tests use it too.
package hashing

import "golang.org/x/crypto/sha3"

// Keccak256 returns the original (pre-NIST-padding) Keccak-256 digest of
// data. CryptoNote's Merkle tree and miner-tx hash both specify this exact
// variant, not SHA3-256.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
