package crawl

import (
	"context"

	"github.com/entityscope/entityscope/internal/audit"
)

// NoopRenderer implements audit.Renderer but always reports the renderer as
// unavailable. The engine treats that like any rendered failure and keeps the
// static result.
type NoopRenderer struct{}

// NewNoopRenderer creates a NoopRenderer.
func NewNoopRenderer() *NoopRenderer {
	return &NoopRenderer{}
}

// Render returns ErrRendererDisabled.
func (NoopRenderer) Render(_ context.Context, _ string, _ string) (audit.FetchResult, error) {
	return audit.FetchResult{}, ErrRendererDisabled
}

// Close is a no-op.
func (NoopRenderer) Close(_ context.Context) error { return nil }
