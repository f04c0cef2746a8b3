package crawl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/audit"
)

type fakeFetcher struct {
	res audit.FetchResult
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (audit.FetchResult, error) {
	return f.res, f.err
}

type fakeRenderer struct {
	res    audit.FetchResult
	err    error
	calls  int
	lastUA string
}

func (f *fakeRenderer) Render(_ context.Context, _ string, ua string) (audit.FetchResult, error) {
	f.calls++
	f.lastUA = ua
	return f.res, f.err
}

func (f *fakeRenderer) Close(_ context.Context) error { return nil }

const thinShell = `<html><head><title>Shell</title></head><body><div id="root"></div></body></html>`

var renderedBody = `<html><head>
<title>Acme</title>
<script type="application/ld+json">{"@type":"Organization"}</script>
</head><body><p>` + strings.TrimSpace(strings.Repeat("entity signal coverage ", 80)) + `</p></body></html>`

func TestEngineStaticFailureYieldsErrorRecord(t *testing.T) {
	t.Parallel()

	engine := NewEngine(
		&fakeFetcher{err: errors.New("dial tcp: connection refused")},
		nil, nil, nil, EngineConfig{}, zap.NewNop(),
	)

	rec := engine.Crawl(context.Background(), "https://down.example/", audit.ModeStatic)
	require.False(t, rec.OK())
	require.Empty(t, rec.Title)
	require.Empty(t, rec.SchemaObjects)
}

func TestEngineBlockedStatusClassified(t *testing.T) {
	t.Parallel()

	engine := NewEngine(
		&fakeFetcher{res: audit.FetchResult{StatusCode: 403, Body: []byte("denied")}},
		nil, nil, nil, EngineConfig{}, zap.NewNop(),
	)

	rec := engine.Crawl(context.Background(), "https://walled.example/", audit.ModeStatic)
	require.False(t, rec.OK())
	require.Equal(t, audit.KindBlocked, rec.Diagnostics.ErrorKind)
}

func TestEngineEscalatesAndUsesRenderedResult(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{res: audit.FetchResult{
		StatusCode: 200,
		Body:       []byte(renderedBody),
		Rendered:   true,
	}}
	engine := NewEngine(
		&fakeFetcher{res: audit.FetchResult{StatusCode: 200, Body: []byte(thinShell)}},
		renderer,
		NewEscalationPolicy(200, 60),
		nil, EngineConfig{}, zap.NewNop(),
	)

	rec := engine.Crawl(context.Background(), "https://spa.example/", audit.ModeStatic)
	require.Equal(t, 1, renderer.calls)
	require.NotEmpty(t, renderer.lastUA)
	require.Equal(t, audit.ModeRendered, rec.Mode)
	require.Equal(t, "Acme", rec.Title)
	require.Len(t, rec.SchemaObjects, 1)
}

func TestEngineRenderedFailureFallsBackToStatic(t *testing.T) {
	t.Parallel()

	engine := NewEngine(
		&fakeFetcher{res: audit.FetchResult{StatusCode: 200, Body: []byte(thinShell)}},
		&fakeRenderer{err: errors.New("browser crashed")},
		NewEscalationPolicy(200, 60),
		nil, EngineConfig{}, zap.NewNop(),
	)

	rec := engine.Crawl(context.Background(), "https://spa.example/", audit.ModeStatic)
	require.True(t, rec.OK())
	require.Equal(t, audit.ModeStatic, rec.Mode)
	require.Equal(t, "Shell", rec.Title)
}

func TestEngineRendererDisabledKeepsStatic(t *testing.T) {
	t.Parallel()

	engine := NewEngine(
		&fakeFetcher{res: audit.FetchResult{StatusCode: 200, Body: []byte(thinShell)}},
		NewNoopRenderer(),
		NewEscalationPolicy(200, 60),
		nil, EngineConfig{}, zap.NewNop(),
	)

	rec := engine.Crawl(context.Background(), "https://spa.example/", audit.ModeStatic)
	require.True(t, rec.OK())
	require.Equal(t, audit.ModeStatic, rec.Mode)
}

func TestEngineExplicitRenderedMode(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{res: audit.FetchResult{
		StatusCode: 200,
		Body:       []byte(renderedBody),
		Rendered:   true,
	}}
	engine := NewEngine(
		// Rich static page would not escalate on its own.
		&fakeFetcher{res: audit.FetchResult{StatusCode: 200, Body: []byte(renderedBody)}},
		renderer,
		NewEscalationPolicy(200, 60),
		nil, EngineConfig{}, zap.NewNop(),
	)

	_ = engine.Crawl(context.Background(), "https://acme.example/", audit.ModeRendered)
	require.Equal(t, 1, renderer.calls)
}
