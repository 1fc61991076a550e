// Package unlocker implements the block-maturation and payout engine
// (spec §4.7): walking candidate blocks to maturity, apportioning
// rewards across accumulated shares (with pool and donation fees), and
// batching payouts above a configured threshold. Grounded directly on
// original_source/src/unlocker.rs, the only reference implementation of
// this component in the pack — the teacher has no equivalent (Bitcoin-
// family pools in the retrieved pack don't model a separate
// maturity-tracked unlocker).
package unlocker

// BlockStatus is a FoundBlock's lifecycle stage (spec §3).
type BlockStatus string

const (
	StatusPending  BlockStatus = "pending"
	StatusMaturing BlockStatus = "maturing"
	StatusUnlocked BlockStatus = "unlocked"
	StatusOrphaned BlockStatus = "orphaned"
)

// FoundBlock is a submitted candidate block awaiting confirmation.
type FoundBlock struct {
	BlockID string
	Status  BlockStatus
	Depth   int64
	Reward  *uint64
}

// Share is one miner's (or donation's) portion of a found block's
// reward pool. is_fee marks donation entries appended by appendFees;
// the pool's own fee is never materialized as a Share since no transfer
// is needed to move funds from the pool to itself.
type Share struct {
	Address string
	Shares  uint64
	IsFee   bool
}

// MinerBalanceTotal is one miner's current payable balance, in
// micro-units of the primary currency (spec's `U = 10^12`).
type MinerBalanceTotal struct {
	Address string
	Amount  int64
}

// Transfer is one payout line item enqueued by ProcessPayments.
type Transfer struct {
	Address string
	Amount  uint64
}
