package template

import (
	"encoding/hex"
	"fmt"

	"github.com/cnpool/poolcore/internal/hashing"
	"github.com/cnpool/poolcore/internal/varint"
)

// ReconstructHashingBlob rebuilds the hashing-blob header for a template
// given an 8-byte (16 hex char) reserved-offset value, per spec §4.2
// hashing_blob_with_nonce. It derives a hashing blob independently of the
// daemon's own blockhashing_blob field; only this package's tests call it,
// and jobs carry the daemon-supplied blockhashing_blob.
//
// Unlike the reference implementation this fixes the known tx-count bug:
// the trailing transaction count is emitted as a full CryptoNote varint,
// not a single hard-coded byte, so blocks at or above 256 transactions
// encode correctly.
func ReconstructHashingBlob(bt *BlockTemplate, reservedNonceHex string) (string, error) {
	if len(reservedNonceHex) != 16 {
		return "", fmt.Errorf("template: reserved nonce must be 16 hex chars, got %d", len(reservedNonceHex))
	}
	if _, err := hex.DecodeString(reservedNonceHex); err != nil {
		return "", fmt.Errorf("template: reserved nonce is not valid hex: %w", err)
	}

	blob := bt.BlocktemplateBlob
	if len(blob) < headerHexLen {
		return "", fmt.Errorf("template: blocktemplate_blob shorter than header")
	}

	reservedHexPos := bt.ReservedOffset*2 - 2
	if reservedHexPos < headerHexLen || reservedHexPos > len(blob) {
		return "", fmt.Errorf("template: reserved_offset %d out of range", bt.ReservedOffset)
	}

	minerTx := blob[headerHexLen:reservedHexPos] + reservedNonceHex
	minerTxBytes, err := hex.DecodeString(minerTx)
	if err != nil {
		return "", fmt.Errorf("template: miner tx segment is not valid hex: %w", err)
	}
	minerTxHash := hashing.Keccak256(minerTxBytes)

	hexDigitsLeft := len(blob) - len(minerTx) - headerHexLen
	if hexDigitsLeft < 2 || (hexDigitsLeft-2)%64 != 0 {
		return "", fmt.Errorf("template: malformed trailing transaction section (%d hex digits left)", hexDigitsLeft)
	}

	otherTxCount := (hexDigitsLeft - 2) / 64
	txHashes := make([][32]byte, 0, otherTxCount+1)
	txHashes = append(txHashes, minerTxHash)

	for idx := 0; idx < otherTxCount; idx++ {
		start := len(minerTx) + headerHexLen + 2 + 64*idx
		hashBytes, err := hex.DecodeString(blob[start : start+64])
		if err != nil {
			return "", fmt.Errorf("template: transaction hash %d is not valid hex: %w", idx, err)
		}
		var h [32]byte
		copy(h[:], hashBytes)
		txHashes = append(txHashes, h)
	}

	root, err := TreeHash(txHashes)
	if err != nil {
		return "", fmt.Errorf("template: computing tree hash: %w", err)
	}

	numHashes := len(txHashes)
	countHex := hex.EncodeToString(varint.Encode(uint64(numHashes)))

	return bt.BlockhashingBlob[:headerHexLen] + hex.EncodeToString(root[:]) + countHex, nil
}

// PatchNonce substitutes an 8-hex-char PoW nonce into the 4-byte nonce
// field shared by blockhashing_blob and blocktemplate_blob (hex positions
// [78, 86) — bytes 39..43 per the glossary), returning the patched hex
// string. Used both to build the hash input for a submitted share and,
// on a full block solution, to patch the final blocktemplate_blob before
// handing it to the daemon's submitblock.
func PatchNonce(blobHex string, nonceHex8 string) (string, error) {
	if len(nonceHex8) != 8 {
		return "", fmt.Errorf("template: nonce must be 8 hex chars, got %d", len(nonceHex8))
	}
	if _, err := hex.DecodeString(nonceHex8); err != nil {
		return "", fmt.Errorf("template: nonce is not valid hex: %w", err)
	}
	if len(blobHex) < 86 {
		return "", fmt.Errorf("template: blob shorter than nonce field")
	}
	return blobHex[:78] + nonceHex8 + blobHex[86:], nil
}
