// Package refresher polls the daemon for new block templates and pushes
// them out to one or more Stratum servers (spec §4.6). It adapts the
// teacher's internal/work.Generator poll loop (ticker-driven fetch,
// exponential backoff on daemon failure, non-blocking downstream
// delivery) to CryptoNote's height-monotonic template replacement
// instead of Bitcoin's previous-block-hash change detection.
package refresher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cnpool/poolcore/internal/daemon"
	"github.com/cnpool/poolcore/internal/template"
)

// Interval is how often to poll the daemon for a new block template.
const Interval = 10 * time.Second

// ReserveSize is the extra_nonce reservation requested from the daemon,
// per spec §4.6.
const ReserveSize = 8

// Target is a single pool listener that templates are pushed to. This is
// the subset of internal/stratum.Server used here, kept as a local
// interface so this package does not import internal/stratum directly.
type Target interface {
	SetTemplate(tmpl *template.BlockTemplate)
	CurrentTemplate() *template.BlockTemplate
	RetargetAll(tmpl *template.BlockTemplate)
}

// TipAnnouncer is the subset of internal/federation.Node used here, kept
// local so this package does not depend on federation or libp2p directly.
// A Refresher with no announcer configured behaves identically, minus the
// gossip (spec's federation layer is strictly supplemental).
type TipAnnouncer interface {
	AnnounceTip(height int64, prevHash string) error
}

// Refresher polls the daemon on a fixed timer and fans the resulting
// template out to every registered Target whose stored height is lower.
type Refresher struct {
	client        daemon.Client
	walletAddress string
	logger        *zap.Logger

	targets   []Target
	announcer TipAnnouncer

	lastAnnouncedHeight uint64
}

// New creates a Refresher for the given daemon client and pool wallet
// address. Targets are added with AddTarget before Start.
func New(client daemon.Client, walletAddress string, logger *zap.Logger) *Refresher {
	return &Refresher{
		client:        client,
		walletAddress: walletAddress,
		logger:        logger,
	}
}

// AddTarget registers a PoolServer to receive template replacements.
// Must be called before Start.
func (r *Refresher) AddTarget(t Target) {
	r.targets = append(r.targets, t)
}

// SetAnnouncer wires an optional federation node: every time a newer
// template is fetched, its height and previous-block hash are gossiped to
// cooperating pool instances.
func (r *Refresher) SetAnnouncer(a TipAnnouncer) {
	r.announcer = a
}

// Start begins polling for block templates until ctx is canceled.
func (r *Refresher) Start(ctx context.Context) {
	go r.pollLoop(ctx)
}

func (r *Refresher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	var consecutiveFailures int
	var lastFailureTime time.Time

	r.fetchAndDistribute(ctx, &consecutiveFailures, &lastFailureTime)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if consecutiveFailures > 0 && time.Since(lastFailureTime) < backoffDuration(consecutiveFailures) {
				continue
			}
			r.fetchAndDistribute(ctx, &consecutiveFailures, &lastFailureTime)
		}
	}
}

func (r *Refresher) fetchAndDistribute(ctx context.Context, consecutiveFailures *int, lastFailureTime *time.Time) {
	resp, err := r.client.GetBlockTemplate(ctx, r.walletAddress, ReserveSize)
	if err != nil {
		*consecutiveFailures++
		*lastFailureTime = time.Now()
		r.logger.Warn("daemon getblocktemplate failed",
			zap.Error(err),
			zap.Int("consecutive_failures", *consecutiveFailures),
			zap.Duration("next_retry", backoffDuration(*consecutiveFailures)),
		)
		return
	}
	if *consecutiveFailures > 0 {
		r.logger.Info("daemon recovered", zap.Int("after_failures", *consecutiveFailures))
		*consecutiveFailures = 0
	}

	tmpl := &template.BlockTemplate{
		BlockhashingBlob:  resp.BlockhashingBlob,
		BlocktemplateBlob: resp.BlocktemplateBlob,
		Difficulty:        resp.Difficulty,
		Height:            resp.Height,
		PrevHash:          resp.PrevHash,
		ReservedOffset:    resp.ReservedOffset,
		Status:            resp.Status,
	}
	if err := tmpl.Validate(); err != nil {
		r.logger.Warn("rejected invalid block template", zap.Error(err))
		return
	}

	for _, target := range r.targets {
		r.replaceIfNewer(target, tmpl)
	}

	if r.announcer != nil && tmpl.Height > r.lastAnnouncedHeight {
		if err := r.announcer.AnnounceTip(int64(tmpl.Height), tmpl.PrevHash); err != nil {
			r.logger.Warn("federation tip announce failed", zap.Error(err))
		} else {
			r.lastAnnouncedHeight = tmpl.Height
		}
	}
}

// replaceIfNewer implements spec §4.6 step 2: replace a PoolServer's
// template iff the new height is strictly greater, then retarget every
// connected session. Each target is handled independently and serially,
// so within one server template replacement is serialized and no session
// observes a partially written template.
func (r *Refresher) replaceIfNewer(target Target, tmpl *template.BlockTemplate) {
	current := target.CurrentTemplate()
	if current != nil && tmpl.Height <= current.Height {
		return
	}
	target.SetTemplate(tmpl)
	target.RetargetAll(tmpl)
	r.logger.Info("block template replaced", zap.Uint64("height", tmpl.Height), zap.String("prev_hash", tmpl.PrevHash))
}

// backoffDuration computes exponential backoff capped at 60s, matching
// the teacher's backoffDuration in internal/work/generator.go.
func backoffDuration(failures int) time.Duration {
	if failures <= 0 {
		return Interval
	}
	d := Interval
	for i := 1; i < failures; i++ {
		d *= 2
		if d > 60*time.Second {
			return 60 * time.Second
		}
	}
	return d
}
