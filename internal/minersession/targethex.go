package minersession

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// maxTarget is 2^256 - 1, the denominator in the difficulty-to-target
// conversion (spec §4.4).
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TargetHex derives the 8-hex-char CryptoNight target from a difficulty,
// per spec §4.4: T = floor(2^256-1 / difficulty); take the 3 most
// significant bytes of T's minimal big-endian representation, reverse them
// to little-endian, and append "00".
func TargetHex(difficulty uint64) (string, error) {
	if difficulty == 0 {
		return "", fmt.Errorf("minersession: difficulty must be > 0")
	}

	t := new(big.Int).Div(maxTarget, new(big.Int).SetUint64(difficulty))
	b := t.Bytes()
	if len(b) < 3 {
		padded := make([]byte, 3)
		copy(padded[3-len(b):], b)
		b = padded
	}
	top3 := b[:3]
	le := []byte{top3[2], top3[1], top3[0]}
	return hex.EncodeToString(le) + "00", nil
}
