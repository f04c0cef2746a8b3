// Package bolt provides a single-file durable store backed by bbolt.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/entityscope/entityscope/internal/audit"
)

const (
	jobsBucket      = "jobs"
	snapshotsBucket = "snapshots"
)

// jobRecord is the persisted envelope: the job plus its expiry.
type jobRecord struct {
	Job       audit.Job `json:"job"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store implements the job and drift stores over one bbolt file. Snapshots
// live in per-vertical nested buckets keyed by sequence number, which keeps
// appends O(1) and newest-first listing a reverse cursor walk.
type Store struct {
	db    *bolt.DB
	ttl   time.Duration
	clock audit.Clock
}

// NewStore opens (or creates) the database file and its buckets.
func NewStore(path string, ttl time.Duration, clock audit.Clock) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(jobsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db, ttl: ttl, clock: clock}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateJob persists a new job record with its TTL.
func (s *Store) CreateJob(_ context.Context, job audit.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if existing, ok := s.liveRecord(bucket.Get([]byte(job.ID))); ok && existing.Job.ID == job.ID {
			return audit.ErrJobExists
		}
		return putJob(bucket, jobRecord{Job: job, ExpiresAt: s.clock.Now().Add(s.ttl)})
	})
}

// GetJob returns the job or ErrNotFound when missing or past its TTL.
func (s *Store) GetJob(_ context.Context, jobID string) (audit.Job, error) {
	var job audit.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, ok := s.liveRecord(tx.Bucket([]byte(jobsBucket)).Get([]byte(jobID)))
		if !ok {
			return audit.ErrNotFound
		}
		job = rec.Job
		return nil
	})
	return job, err
}

// UpdateJob replaces the record whole after the optimistic version check and
// refreshes its TTL.
func (s *Store) UpdateJob(_ context.Context, job audit.Job) (audit.Job, error) {
	var updated audit.Job
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		rec, ok := s.liveRecord(bucket.Get([]byte(job.ID)))
		if !ok {
			return audit.ErrNotFound
		}
		if rec.Job.Version != job.Version {
			return audit.ErrVersionConflict
		}
		job.Version++
		updated = job
		return putJob(bucket, jobRecord{Job: job, ExpiresAt: s.clock.Now().Add(s.ttl)})
	})
	if err != nil {
		return audit.Job{}, err
	}
	return updated, nil
}

// AppendSnapshot writes the snapshot under the next sequence number in the
// vertical's nested bucket.
func (s *Store) AppendSnapshot(_ context.Context, key string, snap audit.DriftSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket([]byte(snapshotsBucket))
		bucket, err := parent.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("create vertical bucket: %w", err)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		return bucket.Put(seqKey(seq), data)
	})
}

// ListSnapshots walks the vertical's bucket backwards so the newest entry
// comes first.
func (s *Store) ListSnapshots(_ context.Context, key string) ([]audit.DriftSnapshot, error) {
	var snaps []audit.DriftSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotsBucket)).Bucket([]byte(key))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var snap audit.DriftSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	return snaps, err
}

// Sweep deletes expired job records and returns how many were removed.
func (s *Store) Sweep() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		now := s.clock.Now()
		c := bucket.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec jobRecord
			if err := json.Unmarshal(v, &rec); err != nil || !rec.ExpiresAt.After(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Store) liveRecord(data []byte) (jobRecord, bool) {
	if data == nil {
		return jobRecord{}, false
	}
	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return jobRecord{}, false
	}
	if !rec.ExpiresAt.After(s.clock.Now()) {
		return jobRecord{}, false
	}
	return rec, true
}

func putJob(bucket *bolt.Bucket, rec jobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", rec.Job.ID, err)
	}
	return bucket.Put([]byte(rec.Job.ID), data)
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
