package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entityscope/entityscope/internal/audit"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleJob(id string) audit.Job {
	return audit.Job{
		ID:     id,
		URLs:   []string{"https://a.example", "https://b.example"},
		Status: audit.JobStatusQueued,
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour, newStubClock())
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("j1")))

	got, err := store.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, "j1", got.ID)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, got.URLs)
}

func TestCreateDuplicateFails(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour, newStubClock())
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("j1")))
	require.ErrorIs(t, store.CreateJob(context.Background(), sampleJob("j1")), audit.ErrJobExists)
}

func TestGetMissingJob(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour, newStubClock())
	_, err := store.GetJob(context.Background(), "nope")
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestUpdateBumpsVersion(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour, newStubClock())
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("j1")))

	job, err := store.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	job.Cursor = 1
	job.Status = audit.JobStatusRunning

	updated, err := store.UpdateJob(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, job.Version+1, updated.Version)
	require.Equal(t, 1, updated.Cursor)
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour, newStubClock())
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("j1")))

	fresh, err := store.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	stale := fresh

	fresh.Cursor = 1
	_, err = store.UpdateJob(context.Background(), fresh)
	require.NoError(t, err)

	stale.Cursor = 2
	_, err = store.UpdateJob(context.Background(), stale)
	require.ErrorIs(t, err, audit.ErrVersionConflict)
}

func TestJobExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	clock := newStubClock()
	store := NewStore(time.Hour, clock)
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("j1")))

	clock.Advance(time.Hour + time.Second)
	_, err := store.GetJob(context.Background(), "j1")
	require.ErrorIs(t, err, audit.ErrNotFound)

	// An expired slot can be recreated.
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("j1")))
}

func TestSweepRemovesExpired(t *testing.T) {
	t.Parallel()

	clock := newStubClock()
	store := NewStore(time.Hour, clock)
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("old")))
	clock.Advance(30 * time.Minute)
	require.NoError(t, store.CreateJob(context.Background(), sampleJob("new")))
	clock.Advance(45 * time.Minute)

	require.Equal(t, 1, store.Sweep())
	_, err := store.GetJob(context.Background(), "new")
	require.NoError(t, err)
}

func TestStoredJobIsIsolatedFromCaller(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour, newStubClock())
	job := sampleJob("j1")
	require.NoError(t, store.CreateJob(context.Background(), job))

	job.URLs[0] = "https://mutated.example"
	got, err := store.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, "https://a.example", got.URLs[0])
}

func TestSnapshotsListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour, newStubClock())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := audit.DriftSnapshot{Vertical: "saas", Timestamp: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, store.AppendSnapshot(context.Background(), "saas", snap))
	}

	snaps, err := store.ListSnapshots(context.Background(), "saas")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.True(t, snaps[0].Timestamp.After(snaps[1].Timestamp))
	require.True(t, snaps[1].Timestamp.After(snaps[2].Timestamp))

	empty, err := store.ListSnapshots(context.Background(), "unknown")
	require.NoError(t, err)
	require.Empty(t, empty)
}
