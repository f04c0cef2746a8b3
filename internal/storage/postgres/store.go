// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/entityscope/entityscope/internal/audit"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	TTL             time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store persists jobs and drift snapshots as JSONB rows. Expiry is enforced
// on read via the expires_at column; a periodic external sweep may prune
// rows, but correctness does not depend on it.
type Store struct {
	pool  pool
	ttl   time.Duration
	clock audit.Clock
}

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg Config, clock audit.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStoreWithPool(p, cfg.TTL, clock)
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(p pool, ttl time.Duration, clock audit.Clock) (*Store, error) {
	return newStoreWithPool(p, ttl, clock)
}

func newStoreWithPool(p pool, ttl time.Duration, clock audit.Clock) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{pool: p, ttl: ttl, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job audit.Job) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	query := `
		INSERT INTO jobs (id, record, version, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query, job.ID, record, job.Version, s.clock.Now().Add(s.ttl))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return audit.ErrJobExists
	}
	return nil
}

// GetJob returns the job, treating expired rows as missing.
func (s *Store) GetJob(ctx context.Context, jobID string) (audit.Job, error) {
	query := `
		SELECT record, version
		FROM jobs
		WHERE id = $1 AND expires_at > $2;
	`
	var (
		record  []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, query, jobID, s.clock.Now()).Scan(&record, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Job{}, audit.ErrNotFound
		}
		return audit.Job{}, fmt.Errorf("get job: %w", err)
	}
	var job audit.Job
	if err := json.Unmarshal(record, &job); err != nil {
		return audit.Job{}, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	// The version column is authoritative.
	job.Version = version
	return job, nil
}

// UpdateJob replaces the row whole, guarded by the version column, and
// refreshes its TTL.
func (s *Store) UpdateJob(ctx context.Context, job audit.Job) (audit.Job, error) {
	next := job
	next.Version++
	record, err := json.Marshal(next)
	if err != nil {
		return audit.Job{}, fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	query := `
		UPDATE jobs
		SET record = $2, version = $3, expires_at = $4
		WHERE id = $1 AND version = $5 AND expires_at > $6;
	`
	now := s.clock.Now()
	tag, err := s.pool.Exec(ctx, query, job.ID, record, next.Version, now.Add(s.ttl), job.Version, now)
	if err != nil {
		return audit.Job{}, fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		probe := `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1 AND expires_at > $2);`
		if err := s.pool.QueryRow(ctx, probe, job.ID, now).Scan(&exists); err != nil {
			return audit.Job{}, fmt.Errorf("probe job: %w", err)
		}
		if !exists {
			return audit.Job{}, audit.ErrNotFound
		}
		return audit.Job{}, audit.ErrVersionConflict
	}
	return next, nil
}

// AppendSnapshot appends one drift row for the vertical.
func (s *Store) AppendSnapshot(ctx context.Context, key string, snap audit.DriftSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	query := `
		INSERT INTO drift_snapshots (vertical, snapshot, created_at)
		VALUES ($1, $2, $3);
	`
	if _, err := s.pool.Exec(ctx, query, key, data, s.clock.Now()); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the vertical's history newest first.
func (s *Store) ListSnapshots(ctx context.Context, key string) ([]audit.DriftSnapshot, error) {
	query := `
		SELECT snapshot
		FROM drift_snapshots
		WHERE vertical = $1
		ORDER BY id DESC;
	`
	rows, err := s.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []audit.DriftSnapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		var snap audit.DriftSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Sweep deletes expired job rows and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE expires_at <= $1;`, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
