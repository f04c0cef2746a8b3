package orchestrator

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/scoring"
)

type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[string]audit.Job
	updateErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]audit.Job{}}
}

func (s *fakeJobStore) CreateJob(_ context.Context, job audit.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return audit.ErrJobExists
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetJob(_ context.Context, jobID string) (audit.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return audit.Job{}, audit.ErrNotFound
	}
	return job, nil
}

func (s *fakeJobStore) UpdateJob(_ context.Context, job audit.Job) (audit.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return audit.Job{}, s.updateErr
	}
	stored, ok := s.jobs[job.ID]
	if !ok {
		return audit.Job{}, audit.ErrNotFound
	}
	if stored.Version != job.Version {
		return audit.Job{}, audit.ErrVersionConflict
	}
	job.Version++
	s.jobs[job.ID] = job
	return job, nil
}

type fakeDatasets struct {
	sets map[string]audit.Dataset
}

func (d *fakeDatasets) Load(key string) (audit.Dataset, error) {
	ds, ok := d.sets[key]
	if !ok {
		return audit.Dataset{}, fmt.Errorf("unknown dataset %q", key)
	}
	return ds, nil
}

// fakeClock only moves when a collaborator advances it, which lets tests
// model the wall-clock fence deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("job-%03d", g.n), nil
}

type fakeCrawler struct {
	mu       sync.Mutex
	pages    map[string]audit.PageRecord
	calls    map[string]int
	clock    *fakeClock
	costPer  time.Duration
	fallback audit.PageRecord
}

func newFakeCrawler() *fakeCrawler {
	return &fakeCrawler{
		pages:    map[string]audit.PageRecord{},
		calls:    map[string]int{},
		fallback: richPage(""),
	}
}

func (c *fakeCrawler) Crawl(_ context.Context, rawURL string, _ audit.FetchMode) audit.PageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[rawURL]++
	if c.clock != nil {
		c.clock.Advance(c.costPer)
	}
	if page, ok := c.pages[rawURL]; ok {
		return page
	}
	page := c.fallback
	page.URL = rawURL
	return page
}

func (c *fakeCrawler) callCount(rawURL string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[rawURL]
}

type fakeDiscoverer struct {
	errs  map[string]error
	delay map[string]time.Duration
}

func (d *fakeDiscoverer) Discover(ctx context.Context, baseURL string) (audit.DiscoveryResult, error) {
	if wait, ok := d.delay[baseURL]; ok {
		select {
		case <-ctx.Done():
			return audit.DiscoveryResult{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	if err, ok := d.errs[baseURL]; ok {
		return audit.DiscoveryResult{}, err
	}
	return audit.DiscoveryResult{
		Surfaces: []audit.Surface{{Key: audit.SurfaceHome, URL: baseURL}},
	}, nil
}

type fakeDrift struct {
	mu    sync.Mutex
	snaps []audit.DriftSnapshot
}

func (d *fakeDrift) Record(_ string, snap audit.DriftSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snaps = append(d.snaps, snap)
}

func (d *fakeDrift) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snaps)
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return "msg-1", nil
}

func richPage(url string) audit.PageRecord {
	return audit.PageRecord{
		URL:           url,
		Mode:          audit.ModeStatic,
		HTTPStatus:    200,
		Title:         "Acme Corp — Industrial Widgets",
		Description:   strings.Repeat("widgets ", 10),
		CanonicalHref: url,
		SchemaObjects: []audit.SchemaObject{
			{"@type": "Organization"},
			{"@type": "WebSite"},
		},
		Diagnostics: audit.PageDiagnostics{WordCount: 1500, SchemaBlockCount: 2},
	}
}

type fixture struct {
	orch       *Orchestrator
	store      *fakeJobStore
	crawler    *fakeCrawler
	discoverer *fakeDiscoverer
	clock      *fakeClock
	drift      *fakeDrift
	publisher  *fakePublisher
}

func newFixture(t *testing.T, urls []string, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:      newFakeJobStore(),
		crawler:    newFakeCrawler(),
		discoverer: &fakeDiscoverer{errs: map[string]error{}, delay: map[string]time.Duration{}},
		clock:      newFakeClock(),
		drift:      &fakeDrift{},
		publisher:  &fakePublisher{},
	}
	datasets := &fakeDatasets{sets: map[string]audit.Dataset{
		"saas": {Vertical: "saas", URLs: urls},
	}}
	f.orch = New(
		f.store, datasets, f.crawler, f.discoverer,
		audit.NewPromotionGate(2), scoring.DefaultConfig(),
		f.drift, f.publisher,
		f.clock, &fakeIDGen{}, cfg, zap.NewNop(),
	)
	return f
}

func TestStartBatchCreatesQueuedJob(t *testing.T) {
	t.Parallel()

	urls := []string{"https://a.example", "https://b.example"}
	f := newFixture(t, urls, Config{ChunkSize: 3})

	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)

	job, err := f.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusQueued, job.Status)
	require.Equal(t, urls, job.URLs)
	require.Zero(t, job.Cursor)
	require.Equal(t, "saas", job.DatasetRef)
	require.Zero(t, f.crawler.callCount(urls[0]), "StartBatch must not crawl")
}

func TestStartBatchRejectsUnknownDataset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"https://a.example"}, Config{})

	_, err := f.orch.StartBatch(context.Background(), "fintech")
	require.ErrorIs(t, err, audit.ErrInvalidInput)

	_, err = f.orch.StartBatch(context.Background(), "")
	require.ErrorIs(t, err, audit.ErrInvalidInput)
}

func TestAdvanceMixedOutcomesInCursorOrder(t *testing.T) {
	t.Parallel()

	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	f := newFixture(t, urls, Config{EntityTimeout: 50 * time.Millisecond})
	f.discoverer.delay["https://b.example"] = 2 * time.Second
	f.discoverer.errs["https://c.example"] = fmt.Errorf(
		"discover: %w", &net.DNSError{Err: "no such host", Name: "c.example"})

	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)

	job, err := f.orch.Advance(context.Background(), jobID, time.Minute)
	require.NoError(t, err)

	require.Equal(t, audit.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.Cursor)
	require.Len(t, job.Results, 1)
	require.Equal(t, "https://a.example", job.Results[0].URL)
	require.NotNil(t, job.Results[0].EntityScore)
	require.Empty(t, job.Results[0].Breakdown, "batch path carries the thin outcome")

	require.Len(t, job.Errors, 2)
	require.Equal(t, "https://b.example", job.Errors[0].URL)
	require.Equal(t, audit.KindTimeout, job.Errors[0].Kind)
	require.Equal(t, "https://c.example", job.Errors[1].URL)
	require.Equal(t, audit.KindNetwork, job.Errors[1].Kind)
}

func TestAdvanceStopsAtTimeFenceAndResumes(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://u0.example", "https://u1.example", "https://u2.example",
		"https://u3.example", "https://u4.example",
	}
	f := newFixture(t, urls, Config{})
	f.crawler.clock = f.clock
	f.crawler.costPer = 30 * time.Second

	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)

	job, err := f.orch.Advance(context.Background(), jobID, 50*time.Second)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusRunning, job.Status)
	require.Equal(t, 2, job.Cursor)
	require.Len(t, job.Results, 2)
	require.Zero(t, f.drift.count(), "incomplete job must not snapshot")

	job, err = f.orch.Advance(context.Background(), jobID, time.Hour)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusCompleted, job.Status)
	require.Equal(t, 5, job.Cursor)
	require.Len(t, job.Results, 5)

	for _, u := range urls {
		require.Equal(t, 1, f.crawler.callCount(u), "resume must not reprocess %s", u)
	}
}

func TestAdvanceCompletedJobIsNoop(t *testing.T) {
	t.Parallel()

	urls := []string{"https://a.example"}
	f := newFixture(t, urls, Config{})

	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)
	done, err := f.orch.Advance(context.Background(), jobID, time.Minute)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusCompleted, done.Status)
	crawls := f.crawler.callCount(urls[0])

	again, err := f.orch.Advance(context.Background(), jobID, time.Minute)
	require.NoError(t, err)
	require.Equal(t, done, again)
	require.Equal(t, crawls, f.crawler.callCount(urls[0]))
	require.Equal(t, 1, f.drift.count(), "finalize must run once")
}

func TestAdvanceCompletionPublishesAndSnapshots(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"https://a.example"}, Config{CompletionTopic: "audits-done"})

	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)
	_, err = f.orch.Advance(context.Background(), jobID, time.Minute)
	require.NoError(t, err)

	require.Equal(t, 1, f.drift.count())
	require.Equal(t, []string{"audits-done"}, f.publisher.topics)
	require.Equal(t, "saas", f.drift.snaps[0].Vertical)
	require.Equal(t, 1, f.drift.snaps[0].Audited)
	require.Greater(t, f.drift.snaps[0].AverageScore, 0.0)
}

func TestLiteGateSkipsLowSignalPages(t *testing.T) {
	t.Parallel()

	thin := audit.PageRecord{
		URL:           "https://thin.example",
		Mode:          audit.ModeStatic,
		HTTPStatus:    200,
		Title:         "Thin",
		SchemaObjects: []audit.SchemaObject{{"@type": "WebPage"}},
		Diagnostics:   audit.PageDiagnostics{WordCount: 80, SchemaBlockCount: 1},
	}
	f := newFixture(t, []string{"https://thin.example"}, Config{LiteFirst: true})
	f.crawler.pages["https://thin.example"] = thin

	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)
	job, err := f.orch.Advance(context.Background(), jobID, time.Minute)
	require.NoError(t, err)

	require.Len(t, job.Results, 1)
	require.Nil(t, job.Results[0].EntityScore)
	require.Equal(t, "Unscored", job.Results[0].Band)
	require.Equal(t, 1, f.crawler.callCount("https://thin.example"), "gate refusal stops at the lite crawl")
}

func TestLiteGatePromotesRichPages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"https://rich.example"}, Config{LiteFirst: true})

	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)
	job, err := f.orch.Advance(context.Background(), jobID, time.Minute)
	require.NoError(t, err)

	require.Len(t, job.Results, 1)
	require.NotNil(t, job.Results[0].EntityScore)
	// Lite probe plus the full surface pass.
	require.Equal(t, 2, f.crawler.callCount("https://rich.example"))
}

func TestAuditURLCarriesFullBreakdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"https://a.example"}, Config{LiteFirst: true})

	out, err := f.orch.AuditURL(context.Background(), "https://a.example")
	require.NoError(t, err)
	require.True(t, out.Success)
	require.NotNil(t, out.EntityScore)
	require.NotEmpty(t, out.Breakdown)
	require.NotEmpty(t, out.Band)

	_, err = f.orch.AuditURL(context.Background(), "")
	require.ErrorIs(t, err, audit.ErrInvalidInput)
}

func TestAdvanceSurfacesVersionConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"https://a.example"}, Config{})
	jobID, err := f.orch.StartBatch(context.Background(), "saas")
	require.NoError(t, err)

	// A concurrent writer wins the version race; our write must surface it.
	f.store.mu.Lock()
	f.store.updateErr = audit.ErrVersionConflict
	f.store.mu.Unlock()

	_, err = f.orch.Advance(context.Background(), jobID, time.Minute)
	require.ErrorIs(t, err, audit.ErrVersionConflict)
}
