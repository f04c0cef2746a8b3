// Package crawl implements the two-stage crawl pipeline: a cheap static fetch
// with conditional escalation to a rendered fetch.
package crawl

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/metrics"
)

// Default AI-crawler identities used for rendered fetches when no pool is
// configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.2; +https://openai.com/gptbot)",
	"Mozilla/5.0 (compatible; PerplexityBot/1.0; +https://perplexity.ai/perplexitybot)",
	"Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)",
	"Mozilla/5.0 (compatible; Google-Extended/1.0)",
}

// EngineConfig controls the escalation engine.
type EngineConfig struct {
	StaticTimeout time.Duration
	RenderTimeout time.Duration
	UserAgents    []string
	ArchivePrefix string
}

// Engine performs the static fetch, computes the escalation decision, and
// optionally performs the rendered fetch, returning one normalized PageRecord
// either way.
type Engine struct {
	static   audit.Fetcher
	renderer audit.Renderer
	policy   *EscalationPolicy
	archive  audit.BlobStore
	cfg      EngineConfig
	logger   *zap.Logger
}

// NewEngine constructs an Engine. The renderer and archive may be nil;
// escalation then silently keeps the static result and no evidence is kept.
func NewEngine(
	static audit.Fetcher,
	renderer audit.Renderer,
	policy *EscalationPolicy,
	archive audit.BlobStore,
	cfg EngineConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaticTimeout <= 0 {
		cfg.StaticTimeout = 20 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 45 * time.Second
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if policy == nil {
		policy = NewEscalationPolicy(0, 0)
	}
	return &Engine{
		static:   static,
		renderer: renderer,
		policy:   policy,
		archive:  archive,
		cfg:      cfg,
		logger:   logger,
	}
}

// Crawl fetches one URL. A static failure yields an error record; a rendered
// failure after a valid static result falls back to the static record.
func (e *Engine) Crawl(ctx context.Context, rawURL string, mode audit.FetchMode) audit.PageRecord {
	staticCtx, cancel := context.WithTimeout(ctx, e.cfg.StaticTimeout)
	defer cancel()

	res, err := e.static.Fetch(staticCtx, rawURL)
	metrics.ObserveFetch(string(audit.ModeStatic), res.Duration, err == nil)
	if err != nil || res.StatusCode >= http.StatusBadRequest {
		return errorRecord(rawURL, res.StatusCode, err)
	}

	rec := ExtractPage(rawURL, audit.ModeStatic, res)
	if !rec.OK() {
		return rec
	}

	if e.policy.ShouldEscalate(rec, mode == audit.ModeRendered) {
		metrics.IncEscalation()
		if rendered, renderedRes, ok := e.render(ctx, rawURL); ok {
			rec = rendered
			res = renderedRes
		}
	}

	e.archiveEvidence(ctx, rec, res)
	return rec
}

func (e *Engine) render(ctx context.Context, rawURL string) (audit.PageRecord, audit.FetchResult, bool) {
	if e.renderer == nil {
		return audit.PageRecord{}, audit.FetchResult{}, false
	}
	renderCtx, cancel := context.WithTimeout(ctx, e.cfg.RenderTimeout)
	defer cancel()

	ua := e.cfg.UserAgents[rand.IntN(len(e.cfg.UserAgents))]
	res, err := e.renderer.Render(renderCtx, rawURL, ua)
	metrics.ObserveFetch(string(audit.ModeRendered), res.Duration, err == nil)
	if err != nil {
		e.logger.Warn("rendered fetch failed, keeping static result",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return audit.PageRecord{}, audit.FetchResult{}, false
	}
	rec := ExtractPage(rawURL, audit.ModeRendered, res)
	if !rec.OK() {
		return audit.PageRecord{}, audit.FetchResult{}, false
	}
	return rec, res, true
}

func (e *Engine) archiveEvidence(ctx context.Context, rec audit.PageRecord, res audit.FetchResult) {
	if e.archive == nil || len(res.Body) == 0 {
		return
	}
	path := fmt.Sprintf("%s/%s/%d.html", e.cfg.ArchivePrefix, sanitizePath(rec.URL), time.Now().UnixMilli())
	if _, err := e.archive.PutObject(ctx, path, "text/html; charset=utf-8", res.Body); err != nil {
		e.logger.Warn("archive evidence failed", zap.String("url", rec.URL), zap.Error(err))
	}
}

func errorRecord(rawURL string, status int, err error) audit.PageRecord {
	msg := fmt.Sprintf("http status %d", status)
	if err != nil {
		msg = err.Error()
	}
	return audit.PageRecord{
		URL:        rawURL,
		Mode:       audit.ModeStatic,
		HTTPStatus: status,
		Error:      msg,
		Diagnostics: audit.PageDiagnostics{
			ErrorKind: audit.ClassifyFetchError(status, err),
		},
	}
}

func sanitizePath(rawURL string) string {
	out := make([]rune, 0, len(rawURL))
	for _, r := range rawURL {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
