// Package store provides the default bbolt-backed implementation of the
// Database contract consumed by internal/unlocker and internal/stratum
// (spec §6, §C.4). Grounded on the teacher's internal/sharechain bbolt
// usage pattern (one bucket per record kind, cbor-encoded values, a
// logger passed at construction) and go.etcd.io/bbolt directly, since the
// teacher's own BoltStore source was not present in the retrieved pack
// (only its test file was) — the bucket layout below is designed fresh
// against the §6 Database contract rather than copied from anything.
package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/cnpool/poolcore/internal/hashing"
	"github.com/cnpool/poolcore/internal/unlocker"
)

var (
	blocksBucket   = []byte("blocks")
	balancesBucket = []byte("balances")
	sharesBucket   = []byte("unpaid_shares")
	payoutsBucket  = []byte("payouts")
)

// blockRecord is the cbor-encoded value stored per block in blocksBucket.
type blockRecord struct {
	Status   unlocker.BlockStatus `cbor:"1,keyasint"`
	Depth    int64                `cbor:"2,keyasint"`
	PrevHash string               `cbor:"3,keyasint"`
	Height   uint64               `cbor:"4,keyasint"`
}

// payoutRecord is an append-only log entry written by LogTransfers.
type payoutRecord struct {
	Transfers []unlocker.Transfer `cbor:"1,keyasint"`
	Fee       uint64              `cbor:"2,keyasint"`
}

// BoltStore is a single-file embedded Database implementation. It
// satisfies unlocker.Database, stratum.FoundBlockRecorder, and
// stratum.ShareAccountant, so one instance backs both the Stratum
// ingestion path and the unlocker's maturation/payout cycle.
type BoltStore struct {
	db     *bbolt.DB
	logger *zap.Logger
	closed atomic.Bool
}

// NewBoltStore opens (creating if necessary) a bbolt database at path and
// ensures all required buckets exist.
func NewBoltStore(path string, logger *zap.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{blocksBucket, balancesBucket, sharesBucket, payoutsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, logger: logger}, nil
}

// Close closes the underlying bbolt file. After Close, IsConnected
// reports false.
func (s *BoltStore) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

// IsConnected reports whether the store is still open for business. Used
// by ProcessPayments as the precondition guarding every wallet transfer
// (spec §4.7): a store that has gone away must never be debited against a
// transfer that cannot be reliably logged.
func (s *BoltStore) IsConnected() bool {
	return !s.closed.Load()
}

// RecordPendingBlock implements stratum.FoundBlockRecorder. The block is
// keyed by the Keccak-256 digest of its decoded blob, since the real
// chain-accepted block hash is only known once the daemon confirms the
// submission; ProcessBlocks reconciles this tracking id against the
// daemon's view on every poll and orphans it if the daemon disagrees.
func (s *BoltStore) RecordPendingBlock(ctx context.Context, blobHex, prevHash string, height uint64) error {
	blob, err := hex.DecodeString(blobHex)
	if err != nil {
		return fmt.Errorf("decode block blob: %w", err)
	}
	hash := hashing.Keccak256(blob)
	blockID := hex.EncodeToString(hash[:])

	rec := blockRecord{Status: unlocker.StatusPending, Depth: 0, PrevHash: prevHash, Height: height}
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode block record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blocksBucket).Put([]byte(blockID), data)
	})
}

// RecordShare implements stratum.ShareAccountant, accumulating a miner's
// raw share weight in the current payout round.
func (s *BoltStore) RecordShare(ctx context.Context, address string, difficulty uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sharesBucket)
		var total uint64
		if raw := b.Get([]byte(address)); raw != nil {
			if err := cbor.Unmarshal(raw, &total); err != nil {
				return fmt.Errorf("decode share total: %w", err)
			}
		}
		total += difficulty
		data, err := cbor.Marshal(total)
		if err != nil {
			return err
		}
		return b.Put([]byte(address), data)
	})
}

// PendingSubmittedBlocks implements unlocker.Database.
func (s *BoltStore) PendingSubmittedBlocks() ([]unlocker.FoundBlock, error) {
	var out []unlocker.FoundBlock
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(blocksBucket).ForEach(func(k, v []byte) error {
			var rec blockRecord
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode block record %s: %w", k, err)
			}
			if rec.Status == unlocker.StatusUnlocked || rec.Status == unlocker.StatusOrphaned {
				return nil
			}
			out = append(out, unlocker.FoundBlock{
				BlockID: string(k),
				Status:  rec.Status,
				Depth:   rec.Depth,
			})
			return nil
		})
	})
	return out, err
}

// SetBlockStatus implements unlocker.Database.
func (s *BoltStore) SetBlockStatus(blockID string, status unlocker.BlockStatus) error {
	return s.updateBlock(blockID, func(rec *blockRecord) { rec.Status = status })
}

// SetBlockProgress implements unlocker.Database.
func (s *BoltStore) SetBlockProgress(blockID string, depth int64) error {
	return s.updateBlock(blockID, func(rec *blockRecord) {
		rec.Status = unlocker.StatusMaturing
		rec.Depth = depth
	})
}

func (s *BoltStore) updateBlock(blockID string, mutate func(*blockRecord)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		raw := b.Get([]byte(blockID))
		if raw == nil {
			return fmt.Errorf("unknown block id %q", blockID)
		}
		var rec blockRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode block record: %w", err)
		}
		mutate(&rec)
		data, err := cbor.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(blockID), data)
	})
}

// UnpaidShares implements unlocker.Database, returning the current
// payout round's accumulated share weight per address.
func (s *BoltStore) UnpaidShares() ([]unlocker.Share, error) {
	var out []unlocker.Share
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sharesBucket).ForEach(func(k, v []byte) error {
			var total uint64
			if err := cbor.Unmarshal(v, &total); err != nil {
				return fmt.Errorf("decode share total %s: %w", k, err)
			}
			out = append(out, unlocker.Share{Address: string(k), Shares: total})
			return nil
		})
	})
	return out, err
}

// DistributeBalances implements unlocker.Database: it credits every
// share (including appended donation entries) its proportional slice of
// adjustedReward, then clears the round so the next found block starts
// accumulating shares from zero.
func (s *BoltStore) DistributeBalances(adjustedReward uint64, blockID string, shares []unlocker.Share, totalShares uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		balances := tx.Bucket(balancesBucket)
		if totalShares > 0 {
			for _, share := range shares {
				portion := int64(adjustedReward) * int64(share.Shares) / int64(totalShares)
				if portion <= 0 {
					continue
				}
				var current int64
				if raw := balances.Get([]byte(share.Address)); raw != nil {
					if err := cbor.Unmarshal(raw, &current); err != nil {
						return fmt.Errorf("decode balance for %s: %w", share.Address, err)
					}
				}
				current += portion
				data, err := cbor.Marshal(current)
				if err != nil {
					return err
				}
				if err := balances.Put([]byte(share.Address), data); err != nil {
					return err
				}
			}
		}

		sharesBkt := tx.Bucket(sharesBucket)
		cursor := sharesBkt.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			if err := sharesBkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// MinerBalanceTotals implements unlocker.Database.
func (s *BoltStore) MinerBalanceTotals() ([]unlocker.MinerBalanceTotal, error) {
	var out []unlocker.MinerBalanceTotal
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(balancesBucket).ForEach(func(k, v []byte) error {
			var amount int64
			if err := cbor.Unmarshal(v, &amount); err != nil {
				return fmt.Errorf("decode balance %s: %w", k, err)
			}
			out = append(out, unlocker.MinerBalanceTotal{Address: string(k), Amount: amount})
			return nil
		})
	})
	return out, err
}

// LogTransfers implements unlocker.Database: it debits each paid
// address's balance by the transferred amount and appends a payout log
// entry keyed by the wallet's transaction hash.
func (s *BoltStore) LogTransfers(transfers []unlocker.Transfer, txHash string, fee uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		balances := tx.Bucket(balancesBucket)
		for _, t := range transfers {
			var current int64
			if raw := balances.Get([]byte(t.Address)); raw != nil {
				if err := cbor.Unmarshal(raw, &current); err != nil {
					return fmt.Errorf("decode balance for %s: %w", t.Address, err)
				}
			}
			current -= int64(t.Amount)
			data, err := cbor.Marshal(current)
			if err != nil {
				return err
			}
			if err := balances.Put([]byte(t.Address), data); err != nil {
				return err
			}
		}

		rec := payoutRecord{Transfers: transfers, Fee: fee}
		data, err := cbor.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(payoutsBucket).Put([]byte(txHash), data)
	})
}
