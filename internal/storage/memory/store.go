// Package memory provides store implementations for local development and
// tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/entityscope/entityscope/internal/audit"
)

type jobEntry struct {
	job       audit.Job
	expiresAt time.Time
}

// Store keeps jobs and drift snapshots in process memory. Job records carry a
// TTL checked lazily on read; expired records behave as missing.
type Store struct {
	mu     sync.RWMutex
	ttl    time.Duration
	clock  audit.Clock
	jobs   map[string]jobEntry
	drifts map[string][]audit.DriftSnapshot
}

// NewStore constructs a Store. A non-positive ttl defaults to 24h.
func NewStore(ttl time.Duration, clock audit.Clock) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		ttl:    ttl,
		clock:  clock,
		jobs:   map[string]jobEntry{},
		drifts: map[string][]audit.DriftSnapshot{},
	}
}

// CreateJob stores a new job record under its TTL.
func (s *Store) CreateJob(_ context.Context, job audit.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[job.ID]; ok && entry.expiresAt.After(s.clock.Now()) {
		return audit.ErrJobExists
	}
	s.jobs[job.ID] = jobEntry{job: cloneJob(job), expiresAt: s.clock.Now().Add(s.ttl)}
	return nil
}

// GetJob returns the stored job or ErrNotFound when missing or expired.
func (s *Store) GetJob(_ context.Context, jobID string) (audit.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[jobID]
	if !ok || !entry.expiresAt.After(s.clock.Now()) {
		return audit.Job{}, audit.ErrNotFound
	}
	return cloneJob(entry.job), nil
}

// UpdateJob replaces the record whole after an optimistic version check and
// refreshes its TTL.
func (s *Store) UpdateJob(_ context.Context, job audit.Job) (audit.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[job.ID]
	if !ok || !entry.expiresAt.After(s.clock.Now()) {
		return audit.Job{}, audit.ErrNotFound
	}
	if entry.job.Version != job.Version {
		return audit.Job{}, audit.ErrVersionConflict
	}
	next := cloneJob(job)
	next.Version++
	s.jobs[job.ID] = jobEntry{job: next, expiresAt: s.clock.Now().Add(s.ttl)}
	return cloneJob(next), nil
}

// AppendSnapshot appends to the vertical's drift history. Snapshots carry no
// TTL.
func (s *Store) AppendSnapshot(_ context.Context, key string, snap audit.DriftSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drifts[key] = append(s.drifts[key], snap)
	return nil
}

// ListSnapshots returns the vertical's history newest first.
func (s *Store) ListSnapshots(_ context.Context, key string) ([]audit.DriftSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.drifts[key]
	out := make([]audit.DriftSnapshot, len(stored))
	for i, snap := range stored {
		out[len(stored)-1-i] = snap
	}
	return out, nil
}

// Sweep drops expired job records. Intended for a periodic maintenance
// goroutine; reads do not depend on it.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	removed := 0
	for id, entry := range s.jobs {
		if !entry.expiresAt.After(now) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// cloneJob deep-copies the slices so callers cannot mutate stored state.
func cloneJob(job audit.Job) audit.Job {
	job.URLs = append([]string(nil), job.URLs...)
	job.Results = append([]audit.Outcome(nil), job.Results...)
	job.Errors = append([]audit.URLError(nil), job.Errors...)
	return job
}
