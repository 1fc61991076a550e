package testutil

import (
	"github.com/cnpool/poolcore/internal/template"
	"github.com/cnpool/poolcore/internal/unlocker"
	"github.com/cnpool/poolcore/pkg/util"
)

// SampleBlockTemplate returns a minimal, well-formed block template for
// testing: reserved_offset clears the 43-byte minimum and the blob is
// even-length hex, matching what (*template.BlockTemplate).Validate
// requires. The blob body itself is arbitrary filler; only its shape
// matters to the code under test.
func SampleBlockTemplate() *template.BlockTemplate {
	blob := "0707dcba9af605afd42cc90bf2c52f459cc3c27c55284aa9f29c1f4b3b1e82ce9bd8e5c0" + util.BytesToHex(make([]byte, 64))
	return &template.BlockTemplate{
		BlockhashingBlob:  blob,
		BlocktemplateBlob: blob,
		Difficulty:        100000,
		Height:            800000,
		PrevHash:          "3fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f39dcba9af605afd4",
		ReservedOffset:    43,
		Status:            "OK",
	}
}

// SampleShares returns a handful of unlocker.Share entries for testing
// reward apportionment, loosely modeled on a small pool with two active
// miners.
func SampleShares() []unlocker.Share {
	return []unlocker.Share{
		{Address: "48edfHu7V9Z84YzzMa6fUueoELZ9ZRXq9VetWzYGzKt52XU5xvqgzYnDK9URnRoJMk1j8nLwEVsaSWJ4fhdUyZijBGUicoD", Shares: 300},
		{Address: "42tHxXL8RvNok5QgSuEcHkWUhi1aPo2jhGTdnYY3U2CeBsvAakGTNUNinTSH4DHtZqpjNNL5dvPZPyA6YyJhD5gvCZzrZxd", Shares: 100},
	}
}

// EasyDifficulty is a vardiff starting difficulty low enough that any
// MockHasher-backed submission clears it.
const EasyDifficulty = 1
