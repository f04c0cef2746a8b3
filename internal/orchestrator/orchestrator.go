// Package orchestrator implements the resumable, time-fenced batch executor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/aggregate"
	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/metrics"
	"github.com/entityscope/entityscope/internal/scoring"
)

// Crawler runs the escalation engine for one URL.
type Crawler interface {
	Crawl(ctx context.Context, rawURL string, mode audit.FetchMode) audit.PageRecord
}

// Discoverer maps a base URL to its identity surfaces.
type Discoverer interface {
	Discover(ctx context.Context, baseURL string) (audit.DiscoveryResult, error)
}

// DriftRecorder receives batch snapshots best-effort.
type DriftRecorder interface {
	Record(verticalKey string, snap audit.DriftSnapshot)
}

// Config controls chunk execution.
type Config struct {
	// ChunkSize is carried on created jobs for observability; the actual
	// fence is the time budget.
	ChunkSize int
	// TimeBudget is the default wall-clock fence per Advance invocation.
	TimeBudget time.Duration
	// EntityTimeout caps one URL's whole pipeline so a hung dependency
	// cannot starve the chunk.
	EntityTimeout time.Duration
	// Cooldown is the sleep between URLs. Deliberate backpressure against
	// upstream bot defenses; keep it even when it looks removable.
	Cooldown time.Duration
	// LiteFirst gates the heavy audit behind a cheap static probe.
	LiteFirst bool
	// CompletionTopic, when set together with a publisher, receives a
	// batch-completed event.
	CompletionTopic string
}

// Orchestrator advances jobs chunk by chunk, persisting progress through the
// job store so no single invocation outlives its compute budget.
type Orchestrator struct {
	store      audit.JobStore
	datasets   audit.DatasetLoader
	crawler    Crawler
	discoverer Discoverer
	gate       *audit.PromotionGate
	scoringCfg scoring.Config
	drift      DriftRecorder
	publisher  audit.Publisher
	clock      audit.Clock
	idGen      audit.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator. drift and publisher may be nil.
func New(
	store audit.JobStore,
	datasets audit.DatasetLoader,
	crawler Crawler,
	discoverer Discoverer,
	gate *audit.PromotionGate,
	scoringCfg scoring.Config,
	drift DriftRecorder,
	publisher audit.Publisher,
	clock audit.Clock,
	idGen audit.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = 50 * time.Second
	}
	if cfg.EntityTimeout <= 0 {
		cfg.EntityTimeout = 25 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	if gate == nil {
		gate = audit.NewPromotionGate(0)
	}
	return &Orchestrator{
		store:      store,
		datasets:   datasets,
		crawler:    crawler,
		discoverer: discoverer,
		gate:       gate,
		scoringCfg: scoringCfg,
		drift:      drift,
		publisher:  publisher,
		clock:      clock,
		idGen:      idGen,
		cfg:        cfg,
		logger:     logger,
	}
}

// StartBatch creates a queued job for the dataset and returns its ID. No
// crawling happens here; the first Advance call does the work.
func (o *Orchestrator) StartBatch(ctx context.Context, datasetKey string) (string, error) {
	if datasetKey == "" {
		return "", fmt.Errorf("%w: dataset key required", audit.ErrInvalidInput)
	}
	ds, err := o.datasets.Load(datasetKey)
	if err != nil {
		return "", fmt.Errorf("%w: %s", audit.ErrInvalidInput, err)
	}
	if len(ds.URLs) == 0 {
		return "", fmt.Errorf("%w: dataset %q has no urls", audit.ErrInvalidInput, datasetKey)
	}

	jobID, err := o.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := o.clock.Now()
	job := audit.Job{
		ID:         jobID,
		DatasetRef: datasetKey,
		URLs:       append([]string(nil), ds.URLs...),
		ChunkSize:  o.cfg.ChunkSize,
		Status:     audit.JobStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	o.logger.Info("batch created",
		zap.String("job_id", jobID),
		zap.String("dataset", datasetKey),
		zap.Int("urls", len(job.URLs)),
	)
	return jobID, nil
}

// Advance processes URLs from the job's cursor until the time budget or the
// URL list is exhausted, then persists the job unconditionally. Re-invoking
// on a completed job is a no-op returning the stored job unchanged.
func (o *Orchestrator) Advance(ctx context.Context, jobID string, budget time.Duration) (audit.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return audit.Job{}, fmt.Errorf("get job: %w", err)
	}
	if job.Status == audit.JobStatusCompleted {
		return job, nil
	}
	if budget <= 0 {
		budget = o.cfg.TimeBudget
	}

	start := o.clock.Now()
	job.Status = audit.JobStatusRunning

	for job.Cursor < len(job.URLs) && o.clock.Now().Sub(start) < budget {
		rawURL := job.URLs[job.Cursor]

		outcome, auditErr := o.auditWithTimeout(ctx, rawURL, false)
		if auditErr != nil {
			job.Errors = append(job.Errors, audit.URLError{
				URL:   rawURL,
				Error: auditErr.Error(),
				Kind:  errorKind(auditErr),
			})
			metrics.IncAudit("error")
			o.logger.Warn("url audit failed",
				zap.String("job_id", job.ID),
				zap.String("url", rawURL),
				zap.Error(auditErr),
			)
		} else {
			job.Results = append(job.Results, outcome)
			metrics.IncAudit("success")
		}
		job.Cursor++

		if job.Cursor < len(job.URLs) && o.cfg.Cooldown > 0 {
			o.sleep(ctx, o.cfg.Cooldown)
		}
	}

	if job.Completed() {
		job.Status = audit.JobStatusCompleted
	}
	job.UpdatedAt = o.clock.Now()

	updated, err := o.store.UpdateJob(ctx, job)
	if err != nil {
		if errors.Is(err, audit.ErrVersionConflict) {
			return audit.Job{}, fmt.Errorf("job %s advanced concurrently: %w", job.ID, err)
		}
		return audit.Job{}, fmt.Errorf("persist job: %w", err)
	}
	metrics.IncJob(string(updated.Status))

	if updated.Status == audit.JobStatusCompleted {
		o.finalizeBatch(ctx, updated)
	}
	return updated, nil
}

// AuditURL runs the full single-URL pipeline with the complete signal
// breakdown attached. It is the pure core reused by both the HTTP handler
// and the ad-hoc pool; it takes no transport objects.
func (o *Orchestrator) AuditURL(ctx context.Context, rawURL string) (audit.Outcome, error) {
	if rawURL == "" {
		return audit.Outcome{}, fmt.Errorf("%w: url required", audit.ErrInvalidInput)
	}
	return o.auditWithTimeout(ctx, rawURL, true)
}

func (o *Orchestrator) auditWithTimeout(ctx context.Context, rawURL string, full bool) (audit.Outcome, error) {
	entityCtx, cancel := context.WithTimeout(ctx, o.cfg.EntityTimeout)
	defer cancel()

	type reply struct {
		outcome audit.Outcome
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		outcome, err := o.auditURL(entityCtx, rawURL, full)
		done <- reply{outcome: outcome, err: err}
	}()

	select {
	case <-entityCtx.Done():
		// The in-flight fetch keeps running to its own timeout; its
		// result is discarded.
		return audit.Outcome{}, fmt.Errorf("entity budget exceeded for %s: %w", rawURL, entityCtx.Err())
	case r := <-done:
		return r.outcome, r.err
	}
}

func (o *Orchestrator) auditURL(ctx context.Context, rawURL string, full bool) (audit.Outcome, error) {
	started := o.clock.Now()

	disc, err := o.discoverer.Discover(ctx, rawURL)
	if err != nil {
		return audit.Outcome{}, err
	}
	homeURL := disc.Surfaces[0].URL

	if o.cfg.LiteFirst && !full {
		lite := o.crawler.Crawl(ctx, homeURL, audit.ModeStatic)
		if !lite.OK() {
			return audit.Outcome{}, fmt.Errorf("lite crawl: %s", lite.Error)
		}
		if !o.gate.ShouldPromote(lite) {
			return liteOutcome(rawURL, lite, o.clock.Now().Sub(started)), nil
		}
	}

	pages := make([]audit.SurfacePage, 0, len(disc.Surfaces))
	var home audit.PageRecord
	for _, surface := range disc.Surfaces {
		page := o.crawler.Crawl(ctx, surface.URL, audit.ModeStatic)
		if surface.Key == audit.SurfaceHome {
			home = page
		}
		pages = append(pages, audit.SurfacePage{Key: surface.Key, Page: page})
	}
	if !home.OK() {
		return audit.Outcome{}, fmt.Errorf("crawl %s: %s", homeURL, home.Error)
	}

	agg := aggregate.Aggregate(pages)
	scored := scoring.Score(scoring.Input{
		Home:     home,
		Entity:   agg.Signals,
		Degraded: disc.Degraded,
	}, o.scoringCfg)

	score := scored.EntityScore
	outcome := audit.Outcome{
		Success:     true,
		URL:         rawURL,
		EntityScore: &score,
		Band:        scored.Band,
		Tiers:       scored.Tiers,
		WordCount:   agg.Signals.TotalWordCount,
		SchemaTypes: len(agg.Signals.SchemaTypes),
		Surfaces:    agg.Signals.SurfacesCounted,
		Degraded:    disc.Degraded,
		DurationMs:  o.clock.Now().Sub(started).Milliseconds(),
	}
	if full {
		outcome.Breakdown = scored.Breakdown
	}
	return outcome, nil
}

// liteOutcome is the thin record for pages the gate declined to promote.
func liteOutcome(rawURL string, lite audit.PageRecord, elapsed time.Duration) audit.Outcome {
	return audit.Outcome{
		Success:     true,
		URL:         rawURL,
		EntityScore: nil,
		Band:        "Unscored",
		WordCount:   lite.Diagnostics.WordCount,
		SchemaTypes: len(lite.SchemaObjects),
		Surfaces:    1,
		DurationMs:  elapsed.Milliseconds(),
	}
}

func (o *Orchestrator) finalizeBatch(ctx context.Context, job audit.Job) {
	snap := buildSnapshot(job, o.clock.Now())
	if o.drift != nil {
		o.drift.Record(job.DatasetRef, snap)
	}
	if o.publisher != nil && o.cfg.CompletionTopic != "" {
		payload := map[string]any{
			"job_id":    job.ID,
			"dataset":   job.DatasetRef,
			"status":    string(job.Status),
			"processed": job.Cursor,
			"total":     len(job.URLs),
			"average":   snap.AverageScore,
			"timestamp": snap.Timestamp.Format(time.RFC3339),
		}
		if _, err := o.publisher.Publish(ctx, o.cfg.CompletionTopic, payload); err != nil {
			o.logger.Warn("completion publish failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
	}
}

func buildSnapshot(job audit.Job, now time.Time) audit.DriftSnapshot {
	snap := audit.DriftSnapshot{
		Vertical:  job.DatasetRef,
		Timestamp: now,
		Audited:   len(job.Results),
		Failed:    len(job.Errors),
	}
	var sum float64
	var scored int
	for _, res := range job.Results {
		if res.EntityScore == nil {
			continue
		}
		sum += float64(*res.EntityScore)
		scored++
		snap.Scores = append(snap.Scores, audit.URLScore{URL: res.URL, Score: *res.EntityScore})
	}
	if scored > 0 {
		snap.AverageScore = sum / float64(scored)
	}
	return snap
}

// sleep pauses for the cooldown, waking early if the context ends.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func errorKind(err error) audit.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return audit.KindTimeout
	case errors.Is(err, audit.ErrInvalidInput):
		return audit.KindInput
	default:
		return audit.ClassifyFetchError(0, err)
	}
}
