package template

import "github.com/cnpool/poolcore/internal/hashing"

// treeHashCount returns the largest power of two strictly less than n
// (spec §4.2's "largest power of two strictly less than |hashes|").
func treeHashCount(n int) int {
	i := 1
	for i*2 < n {
		i *= 2
	}
	return i
}

func concatAndHash(a, b [32]byte) [32]byte {
	return hashing.Keccak256(a[:], b[:])
}

// TreeHash computes the Monero-variant Merkle root of an ordered list of
// 32-byte hashes, per spec §4.2. Panics are never used; callers must pass
// at least one hash.
func TreeHash(hashes [][32]byte) ([32]byte, error) {
	count := len(hashes)
	if count == 0 {
		return [32]byte{}, errEmptyHashList
	}
	if count == 1 {
		return hashes[0], nil
	}
	if count == 2 {
		return concatAndHash(hashes[0], hashes[1]), nil
	}

	cnt := treeHashCount(count)
	ints := make([][32]byte, cnt)
	slicePoint := 2*cnt - count

	copy(ints[:slicePoint], hashes[:slicePoint])

	i := slicePoint
	for j := slicePoint; j < cnt; j++ {
		ints[j] = concatAndHash(hashes[i], hashes[i+1])
		i += 2
	}

	for cnt > 2 {
		cnt /= 2
		ii := 0
		for jj := 0; jj < cnt; jj++ {
			ints[jj] = concatAndHash(ints[ii], ints[ii+1])
			ii += 2
		}
	}

	return concatAndHash(ints[0], ints[1]), nil
}

var errEmptyHashList = treeHashError("template: tree_hash requires at least one hash")

type treeHashError string

func (e treeHashError) Error() string { return string(e) }
