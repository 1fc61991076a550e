// Package util holds small generic helpers shared across packages that
// don't warrant their own package.
package util

import (
	"encoding/hex"
)

// HexToBytes decodes a hex string to bytes, returning an error if invalid.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// BytesToHex encodes bytes to a hex string.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}
