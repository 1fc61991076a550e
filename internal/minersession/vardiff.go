package minersession

import "math"

// bufferSeconds is the fixed smoothing window from spec §4.4's
// adjust_difficulty formula (5 minutes).
const bufferSeconds = 300

// driftThreshold: only update the stored difficulty if the ideal value
// differs from the current one by more than this fraction.
const driftThreshold = 0.25

// VardiffConfig carries the per-port parameters adjust_difficulty needs.
type VardiffConfig struct {
	StartingDifficulty uint64
	TargetTime         uint64 // seconds
}

// Vardiff implements the variable-difficulty retargeting formula from
// spec §4.4, ported directly from original_source/src/miner.rs's
// adjust_difficulty (the teacher's retrieved pack has no vardiff source of
// its own beyond a test stub, so the formula itself is taken from the
// reference implementation rather than guessed). Arithmetic intentionally
// stays in integer division, matching the Rust u64 math: the buffer term
// dominates early in a session and only converges to the miner's true
// share rate once elapsed time dwarfs the 5-minute buffer.
type Vardiff struct {
	cfg VardiffConfig
}

// NewVardiff constructs a Vardiff for the given port configuration.
func NewVardiff(cfg VardiffConfig) *Vardiff {
	return &Vardiff{cfg: cfg}
}

// Adjust computes the new difficulty for a miner given its cumulative
// session share count and elapsed session seconds, per spec §4.4. It
// returns (newDifficulty, true) only when the drift exceeds
// driftThreshold; otherwise it returns (current, false) and the caller
// should leave the stored difficulty untouched.
func (v *Vardiff) Adjust(current uint64, totalShares uint64, elapsedSeconds uint64) (uint64, bool) {
	bufferShares := v.cfg.StartingDifficulty * bufferSeconds
	hashrate := (totalShares + bufferShares) / (elapsedSeconds + bufferSeconds)
	ideal := hashrate * v.cfg.TargetTime

	if current == 0 {
		return ideal, true
	}

	ratio := float64(ideal) / float64(current)
	if math.Abs(ratio-1.0) <= driftThreshold {
		return current, false
	}
	return ideal, true
}
