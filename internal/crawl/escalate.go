package crawl

import (
	"github.com/entityscope/entityscope/internal/audit"
)

// EscalationPolicy decides when a static page warrants the expensive rendered
// fetch. Schema and content are frequently injected client-side, so the
// thresholds trade cheap fetches against missed signals; tune them via
// configuration, not code changes.
type EscalationPolicy struct {
	minWordCount   int
	maxScriptCount int
}

// NewEscalationPolicy constructs a policy with the configured thresholds.
func NewEscalationPolicy(minWordCount, maxScriptCount int) *EscalationPolicy {
	if minWordCount <= 0 {
		minWordCount = 200
	}
	if maxScriptCount <= 0 {
		maxScriptCount = 60
	}
	return &EscalationPolicy{
		minWordCount:   minWordCount,
		maxScriptCount: maxScriptCount,
	}
}

// ShouldEscalate reports whether a rendered fetch is warranted: either the
// caller explicitly requested rendered mode, or the static page looks like a
// client-rendered shell.
func (p *EscalationPolicy) ShouldEscalate(rec audit.PageRecord, renderRequested bool) bool {
	if renderRequested {
		return true
	}
	switch {
	case rec.Diagnostics.WordCount < p.minWordCount:
		return true
	case rec.Diagnostics.ScriptCount > p.maxScriptCount:
		return true
	case rec.Diagnostics.SchemaBlockCount == 0:
		return true
	case rec.Diagnostics.HasNoscript:
		return true
	default:
		return false
	}
}
