package jobregistry

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCapacity bounds the number of jobs retained per miner, mirroring
// the teacher's maxStoredJobs constant.
const DefaultCapacity = 20

// DefaultTTL is the recommended job lifetime: 2x the template-refresh
// interval (spec §4.3), so a job never outlives two refresh cycles.
const DefaultTTL = 20 * time.Second

// Registry is a per-miner bounded, time-expiring job map.
type Registry struct {
	cache *lru.LRU[string, *Job]
}

// New creates a Registry with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Registry {
	return &Registry{cache: lru.NewLRU[string, *Job](capacity, nil, ttl)}
}

// NewDefault creates a Registry using DefaultCapacity and DefaultTTL.
func NewDefault() *Registry {
	return New(DefaultCapacity, DefaultTTL)
}

// Insert adds a job to the registry, evicting the oldest entry on
// capacity overflow or expiring entries past their TTL.
func (r *Registry) Insert(job *Job) {
	r.cache.Add(job.ID, job)
}

// Find looks up a job by ID. The second return value is false if the job
// is unknown or has expired.
func (r *Registry) Find(jobID string) (*Job, bool) {
	return r.cache.Get(jobID)
}

// Len reports the number of live (non-expired) jobs currently tracked.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// RecordNonceResult is the outcome of RecordNonce against the registry,
// distinguishing an unknown job from a duplicate nonce within a known one.
type RecordNonceResult int

const (
	Inserted RecordNonceResult = iota
	Duplicate
	UnknownJob
)

// RecordNonce finds jobID and atomically test-and-sets nonce against it.
func (r *Registry) RecordNonce(jobID, nonce string) RecordNonceResult {
	job, ok := r.cache.Get(jobID)
	if !ok {
		return UnknownJob
	}
	switch job.RecordNonce(nonce) {
	case NonceDuplicate:
		return Duplicate
	default:
		return Inserted
	}
}
