// Package template parses CryptoNote block templates, reconstructs
// per-job hashing blobs, and computes the Monero-variant Merkle root. It
// is the CryptoNight-domain replacement for the teacher's Bitcoin-specific
// coinbase/Merkle-branch reconstruction in internal/work/template.go: same
// role (turn a daemon template into something a miner can hash), different
// wire format.
package template

import (
	"encoding/hex"
	"fmt"

	"github.com/cnpool/poolcore/internal/hashing"
	"github.com/cnpool/poolcore/internal/varint"
)

// BlockTemplate is the daemon-supplied template, per spec §3. It is
// replaced atomically (never mutated in place) as new heights arrive.
type BlockTemplate struct {
	BlockhashingBlob string `json:"blockhashing_blob"`
	BlocktemplateBlob string `json:"blocktemplate_blob"`
	Difficulty       uint64 `json:"difficulty"`
	Height           uint64 `json:"height"`
	PrevHash         string `json:"prev_hash"`
	ReservedOffset   int    `json:"reserved_offset"`
	Status           string `json:"status"`
}

// Validate enforces the invariants spec §3 attaches to BlockTemplate.
func (bt *BlockTemplate) Validate() error {
	if bt.ReservedOffset < 43 {
		return fmt.Errorf("template: reserved_offset %d below minimum 43", bt.ReservedOffset)
	}
	if len(bt.BlocktemplateBlob)%2 != 0 {
		return fmt.Errorf("template: blocktemplate_blob has odd hex length")
	}
	if _, err := hex.DecodeString(bt.BlocktemplateBlob); err != nil {
		return fmt.Errorf("template: blocktemplate_blob is not valid hex: %w", err)
	}
	return nil
}

// Output is one transaction output in the miner (coinbase) transaction.
type Output struct {
	Amount uint64
	Type   byte
	Key    [32]byte
}

// ParsedTemplate is the structured form of a block template's binary miner
// transaction, per spec §4.2 parse(). It exposes a template's shape and
// its trailing transaction-hash list independently of the daemon's own
// blockhashing_blob field; only this package's tests call Parse.
type ParsedTemplate struct {
	Format     uint64
	Version    uint64
	UnlockTime uint64
	InputNum   uint64
	InputType  byte
	Height     uint64
	OutputNum  uint64
	Outputs    []Output
	ExtraSize  byte
	Extra      []byte
	TxNum      uint64
	TxHashes   [][32]byte
}

// parseStart is the byte offset at which the fixed template header ends
// and the miner transaction's varint-encoded fields begin.
const parseStart = 42

// headerHexLen is the length, in hex characters, of the fixed header
// shared verbatim between blockhashing_blob and blocktemplate_blob.
const headerHexLen = 86

// Parse walks a raw (non-hex) block template following spec §4.2: starting
// at byte 42, read format/version/unlock_time/input_num varints, one byte
// input_type, the height varint, the output_num varint, then each output's
// (amount varint, 1-byte type, 32-byte key), the extra field, the tx_num
// varint, and finally tx_num*32 bytes of transaction hashes.
func Parse(raw []byte) (*ParsedTemplate, error) {
	if len(raw) < parseStart {
		return nil, fmt.Errorf("template: too short (%d bytes) to contain a header", len(raw))
	}

	i := parseStart
	pt := &ParsedTemplate{}

	var n int
	var err error

	if pt.Format, n, err = varint.Decode(raw[i:]); err != nil {
		return nil, fmt.Errorf("template: format varint: %w", err)
	}
	i += n

	if pt.Version, n, err = varint.Decode(raw[i:]); err != nil {
		return nil, fmt.Errorf("template: version varint: %w", err)
	}
	i += n

	if pt.UnlockTime, n, err = varint.Decode(raw[i:]); err != nil {
		return nil, fmt.Errorf("template: unlock_time varint: %w", err)
	}
	i += n

	if pt.InputNum, n, err = varint.Decode(raw[i:]); err != nil {
		return nil, fmt.Errorf("template: input_num varint: %w", err)
	}
	i += n

	if i >= len(raw) {
		return nil, fmt.Errorf("template: truncated before input_type")
	}
	pt.InputType = raw[i]
	i++

	if pt.Height, n, err = varint.Decode(raw[i:]); err != nil {
		return nil, fmt.Errorf("template: height varint: %w", err)
	}
	i += n

	if pt.OutputNum, n, err = varint.Decode(raw[i:]); err != nil {
		return nil, fmt.Errorf("template: output_num varint: %w", err)
	}
	i += n

	pt.Outputs = make([]Output, 0, pt.OutputNum)
	for o := uint64(0); o < pt.OutputNum; o++ {
		var amount uint64
		if amount, n, err = varint.Decode(raw[i:]); err != nil {
			return nil, fmt.Errorf("template: output[%d] amount varint: %w", o, err)
		}
		i += n

		if i+1+32 > len(raw) {
			return nil, fmt.Errorf("template: truncated in output[%d]", o)
		}
		outType := raw[i]
		i++
		var key [32]byte
		copy(key[:], raw[i:i+32])
		i += 32

		pt.Outputs = append(pt.Outputs, Output{Amount: amount, Type: outType, Key: key})
	}

	if i >= len(raw) {
		return nil, fmt.Errorf("template: truncated before extra_size")
	}
	pt.ExtraSize = raw[i]
	i++
	if i+int(pt.ExtraSize) > len(raw) {
		return nil, fmt.Errorf("template: truncated in extra field")
	}
	pt.Extra = append([]byte(nil), raw[i:i+int(pt.ExtraSize)]...)
	i += int(pt.ExtraSize)

	if pt.TxNum, n, err = varint.Decode(raw[i:]); err != nil {
		return nil, fmt.Errorf("template: tx_num varint: %w", err)
	}
	i += n

	remaining := raw[i:]
	if uint64(len(remaining)) != pt.TxNum*32 {
		return nil, fmt.Errorf("template: expected %d transaction-hash bytes, found %d", pt.TxNum*32, len(remaining))
	}
	pt.TxHashes = make([][32]byte, pt.TxNum)
	for t := uint64(0); t < pt.TxNum; t++ {
		copy(pt.TxHashes[t][:], remaining[t*32:(t+1)*32])
	}

	return pt, nil
}
