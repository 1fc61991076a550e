// Package minersession implements the per-connection miner state machine
// (spec §4.4): login identity, vardiff accounting, job issuance and
// retargeting. Grounded on the teacher's per-connection session handling
// in internal/stratum (classic Stratum diff1-share accounting), generalized
// to CryptoNote's job/target_hex model and to adjust_difficulty's rolling
// hashrate estimate from original_source/src/miner.rs.
package minersession

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cnpool/poolcore/internal/jobregistry"
	"github.com/cnpool/poolcore/internal/template"
)

// State is a MinerSession's position in the New→LoggedIn→{Working⇆Idle}→
// Disconnected state machine (spec §4.4).
type State int32

const (
	StateNew State = iota
	StateLoggedIn
	StateWorking
	StateIdle
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLoggedIn:
		return "logged_in"
	case StateWorking:
		return "working"
	case StateIdle:
		return "idle"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// JobPush is the payload written to a session's outbound channel when a
// new job is retargeted to it. The stratum server wraps this into its own
// JSON-RPC notification envelope at send time, keeping this package free
// of any dependency on the wire protocol package.
type JobPush struct {
	JobID  string
	Blob   string
	Target string
}

// Config bundles the per-port settings a MinerSession needs at creation
// time: the starting vardiff difficulty and the target seconds-per-share
// used by adjust_difficulty.
type Config struct {
	StartingDifficulty uint64
	TargetTimeSeconds  uint64
}

// MinerSession is the state of one connected miner (spec §3).
type MinerSession struct {
	MinerID  uuid.UUID
	Login    string
	PeerAddr string

	difficulty     uint64 // atomic
	sessionShares  uint64 // atomic
	sessionStart   time.Time
	state          int32 // atomic, holds a State
	vardiff        *Vardiff
	jobs           *jobregistry.Registry
	outbound       chan JobPush
	extraNonceSeed string

	mu sync.Mutex
}

// New constructs a MinerSession in the New state. Outbound has a small
// buffer so a slow consumer doesn't block retarget_job callers; a full
// channel is treated as a delivery failure and logged by the caller.
func New(login, peerAddr string, cfg Config) *MinerSession {
	id := uuid.New()
	return &MinerSession{
		MinerID:        id,
		Login:          login,
		PeerAddr:       peerAddr,
		difficulty:     cfg.StartingDifficulty,
		sessionStart:   time.Now(),
		state:          int32(StateNew),
		vardiff:        NewVardiff(VardiffConfig{StartingDifficulty: cfg.StartingDifficulty, TargetTime: cfg.TargetTimeSeconds}),
		jobs:           jobregistry.NewDefault(),
		outbound:       make(chan JobPush, 4),
		extraNonceSeed: id.String()[:8],
	}
}

// Outbound returns the channel the stratum server should drain to deliver
// job-push notifications to this miner.
func (s *MinerSession) Outbound() <-chan JobPush {
	return s.outbound
}

// State returns the session's current state.
func (s *MinerSession) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Difficulty returns the current vardiff difficulty.
func (s *MinerSession) Difficulty() uint64 {
	return atomic.LoadUint64(&s.difficulty)
}

// MarkLoggedIn transitions New→LoggedIn on successful login (spec §4.4).
// It is a no-op (returns false) if the session isn't in the New state.
func (s *MinerSession) MarkLoggedIn() bool {
	return atomic.CompareAndSwapInt32(&s.state, int32(StateNew), int32(StateLoggedIn))
}

// MarkDisconnected transitions the session to Disconnected from any state.
func (s *MinerSession) MarkDisconnected() {
	atomic.StoreInt32(&s.state, int32(StateDisconnected))
}

// AcceptsWork reports whether the session is in a state that accepts
// getjob/submit calls: only LoggedIn, Working, or Idle do.
func (s *MinerSession) AcceptsWork() bool {
	switch s.State() {
	case StateLoggedIn, StateWorking, StateIdle:
		return true
	default:
		return false
	}
}

// GetJob allocates a fresh Job against currentTemplate, registers it in
// this session's job registry, and returns the job-push payload for it
// (spec §4.4 get_job). The extra_nonce is a per-session log-correlation
// label only; it is never written into the mining blob (see the Open
// Questions decision recorded in SPEC_FULL.md).
func (s *MinerSession) GetJob(currentTemplate *template.BlockTemplate) (JobPush, error) {
	if currentTemplate == nil {
		return JobPush{}, fmt.Errorf("minersession: nil template")
	}
	diff := s.Difficulty()
	targetHex, err := TargetHex(diff)
	if err != nil {
		return JobPush{}, fmt.Errorf("minersession: target_hex: %w", err)
	}

	jobID := uuid.New().String()
	job := jobregistry.NewJob(jobID, s.extraNonceSeed, currentTemplate.Height, diff, targetHex, currentTemplate)
	s.jobs.Insert(job)

	atomic.CompareAndSwapInt32(&s.state, int32(StateLoggedIn), int32(StateWorking))
	atomic.CompareAndSwapInt32(&s.state, int32(StateIdle), int32(StateWorking))

	return JobPush{
		JobID:  jobID,
		Blob:   currentTemplate.BlockhashingBlob,
		Target: targetHex,
	}, nil
}

// FindJob looks up a previously issued job by ID, for submit validation.
func (s *MinerSession) FindJob(jobID string) (*jobregistry.Job, bool) {
	return s.jobs.Find(jobID)
}

// RecordNonce test-and-sets (jobID, nonce) against this session's job
// registry; see jobregistry.Registry.RecordNonce for the result codes.
func (s *MinerSession) RecordNonce(jobID, nonce string) jobregistry.RecordNonceResult {
	return s.jobs.RecordNonce(jobID, nonce)
}

// RecordShare adds newShares to the session's cumulative share count, then
// runs adjust_difficulty (spec §4.4). newShares is normally 1 per accepted
// submit; it returns true if the stored difficulty changed, in which case
// the caller should invoke RetargetJob.
func (s *MinerSession) RecordShare(newShares uint64) bool {
	total := atomic.AddUint64(&s.sessionShares, newShares)
	elapsed := uint64(time.Since(s.sessionStart).Seconds())

	current := s.Difficulty()
	newDiff, changed := s.vardiff.Adjust(current, total, elapsed)
	if !changed {
		return false
	}
	atomic.StoreUint64(&s.difficulty, newDiff)
	return true
}

// RetargetJob synthesizes a fresh job against currentTemplate and pushes
// it to the miner's outbound channel. A full (blocked) channel is treated
// as delivery failure: logged by the caller, not retried (spec §4.4).
func (s *MinerSession) RetargetJob(currentTemplate *template.BlockTemplate) error {
	push, err := s.GetJob(currentTemplate)
	if err != nil {
		return err
	}
	select {
	case s.outbound <- push:
		return nil
	default:
		return fmt.Errorf("minersession: outbound channel full for miner %s", s.MinerID)
	}
}

// MarkIdle transitions Working→Idle, e.g. after a keepalive with no
// intervening submits.
func (s *MinerSession) MarkIdle() {
	atomic.CompareAndSwapInt32(&s.state, int32(StateWorking), int32(StateIdle))
}

// SessionShares reports the cumulative accepted-share count for this
// session, used by tests asserting vardiff drift behavior.
func (s *MinerSession) SessionShares() uint64 {
	return atomic.LoadUint64(&s.sessionShares)
}
