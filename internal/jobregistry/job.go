// Package jobregistry implements the per-miner, time-bounded map of
// outstanding jobs (spec §4.3), including the atomic duplicate-nonce
// test-and-set each submit call relies on. Grounded on the teacher's
// work.Generator job map (bounded, oldest-evicted storeJob) generalized
// to a real TTL+capacity LRU via hashicorp/golang-lru/v2's expirable
// variant, which is already present in the dependency graph transitively
// through the libp2p stack and is promoted here to direct use.
package jobregistry

import (
	"sync"

	"github.com/cnpool/poolcore/internal/template"
)

// Job is one outstanding unit of work handed to a miner, per spec §3.
type Job struct {
	ID               string
	ExtraNonce       string
	Height           uint64
	TargetDifficulty uint64
	TargetHex        string
	TemplateRef      *template.BlockTemplate

	mu              sync.Mutex
	submittedNonces map[string]struct{}
}

// NewJob constructs a Job with an empty nonce set.
func NewJob(id string, extraNonce string, height, targetDifficulty uint64, targetHex string, tmpl *template.BlockTemplate) *Job {
	return &Job{
		ID:               id,
		ExtraNonce:       extraNonce,
		Height:           height,
		TargetDifficulty: targetDifficulty,
		TargetHex:        targetHex,
		TemplateRef:      tmpl,
		submittedNonces:  make(map[string]struct{}),
	}
}

// NonceOutcome is the result of a record-nonce test-and-set.
type NonceOutcome int

const (
	NonceInserted NonceOutcome = iota
	NonceDuplicate
)

// RecordNonce atomically tests and sets nonce in this job's submission
// set. The winner of a race is whichever goroutine's insert is observed
// first; spec §5's "no double credit" guarantee relies on this being the
// sole linearization point for a given (job, nonce) pair.
func (j *Job) RecordNonce(nonce string) NonceOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.submittedNonces[nonce]; ok {
		return NonceDuplicate
	}
	j.submittedNonces[nonce] = struct{}{}
	return NonceInserted
}

// SubmittedNonceCount reports how many distinct nonces this job has
// accepted; used by tests asserting the no-double-credit property.
func (j *Job) SubmittedNonceCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.submittedNonces)
}
