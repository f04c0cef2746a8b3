// Package audit defines core types shared across subsystems.
package audit

import (
	"time"
)

// JobStatus represents the lifecycle state of a batch audit job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// Job is the unit of batch work. The URL list is fixed at creation; the
// cursor marks the next unprocessed index and is the sole resumption
// checkpoint across invocations.
type Job struct {
	ID         string     `json:"id"`
	DatasetRef string     `json:"dataset_ref"`
	URLs       []string   `json:"urls"`
	Cursor     int        `json:"cursor"`
	ChunkSize  int        `json:"chunk_size"`
	Results    []Outcome  `json:"results"`
	Errors     []URLError `json:"errors"`
	Status     JobStatus  `json:"status"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Completed reports whether every URL has been processed.
func (j Job) Completed() bool {
	return j.Cursor >= len(j.URLs)
}

// URLError records one failed URL inside a job.
type URLError struct {
	URL   string    `json:"url"`
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind,omitempty"`
}

// FetchMode tags how a page body was obtained.
type FetchMode string

// Fetch modes recorded on PageRecord.
const (
	ModeStatic   FetchMode = "static"
	ModeRendered FetchMode = "rendered"
)

// SchemaObject is one parsed JSON-LD node.
type SchemaObject map[string]any

// Types returns the @type values of the node, flattening single strings and
// arrays alike.
func (o SchemaObject) Types() []string {
	switch v := o["@type"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// SameAs returns the sameAs URLs of the node, if any.
func (o SchemaObject) SameAs() []string {
	switch v := o["sameAs"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// PageDiagnostics carries the cheap structural counters extracted from a page.
type PageDiagnostics struct {
	WordCount        int       `json:"word_count"`
	LinkCount        int       `json:"link_count"`
	SchemaBlockCount int       `json:"schema_block_count"`
	ScriptCount      int       `json:"script_count"`
	HasNoscript      bool      `json:"has_noscript"`
	ParseErrors      int       `json:"parse_errors,omitempty"`
	ErrorKind        ErrorKind `json:"error_kind,omitempty"`
}

// PageRecord is the normalized crawl output for one fetched page. Every
// producer (static fetch, rendered fetch) normalizes into this shape at the
// boundary.
type PageRecord struct {
	URL           string          `json:"url"`
	Mode          FetchMode       `json:"mode"`
	HTTPStatus    int             `json:"http_status"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	CanonicalHref string          `json:"canonical_href"`
	SchemaObjects []SchemaObject  `json:"schema_objects"`
	PageLinks     []string        `json:"page_links"`
	Diagnostics   PageDiagnostics `json:"diagnostics"`
	Error         string          `json:"error,omitempty"`
}

// OK reports whether the page was fetched without a terminal error.
func (p PageRecord) OK() bool {
	return p.Error == ""
}

// SignalResult is one scored signal. Produced fresh per audit, never mutated.
type SignalResult struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
	Max    float64 `json:"max"`
	Notes  string  `json:"notes,omitempty"`
	Raw    any     `json:"raw,omitempty"`
}

// TierScores regroups signal points by the configured name-to-tier mapping.
type TierScores struct {
	Tier1 float64 `json:"tier1"`
	Tier2 float64 `json:"tier2"`
	Tier3 float64 `json:"tier3"`
}

// Outcome is the result of auditing one URL. Batch paths carry the thin
// fields only; the single-audit path also attaches the full breakdown.
type Outcome struct {
	Success     bool           `json:"success"`
	URL         string         `json:"url"`
	EntityScore *int           `json:"entity_score"`
	Band        string         `json:"band,omitempty"`
	Tiers       TierScores     `json:"tiers"`
	WordCount   int            `json:"word_count,omitempty"`
	SchemaTypes int            `json:"schema_types,omitempty"`
	Surfaces    int            `json:"surfaces,omitempty"`
	Degraded    bool           `json:"degraded,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
	Breakdown   []SignalResult `json:"breakdown,omitempty"`
}

// URLScore is the thin per-URL entry kept inside drift snapshots.
type URLScore struct {
	URL   string `json:"url"`
	Score int    `json:"score"`
}

// DriftSnapshot is an append-only historical record of batch-level aggregate
// scores for one vertical.
type DriftSnapshot struct {
	Vertical     string     `json:"vertical"`
	Timestamp    time.Time  `json:"timestamp"`
	AverageScore float64    `json:"average_score"`
	Audited      int        `json:"audited"`
	Failed       int        `json:"failed"`
	Scores       []URLScore `json:"scores"`
}

// SurfaceKey names one identity surface category.
type SurfaceKey string

// Identity surface categories, in classification priority order.
const (
	SurfaceHome      SurfaceKey = "home"
	SurfaceAbout     SurfaceKey = "about"
	SurfaceBlog      SurfaceKey = "blog"
	SurfaceInvestors SurfaceKey = "investors"
	SurfaceCareers   SurfaceKey = "careers"
	SurfaceProduct   SurfaceKey = "product"
)

// Surface binds a discovered surface key to its URL, preserving discovery
// order.
type Surface struct {
	Key SurfaceKey `json:"key"`
	URL string     `json:"url"`
}

// DiscoveryResult is the bounded surface set found for a base URL. Home is
// always present; Degraded marks a failed homepage fetch.
type DiscoveryResult struct {
	Surfaces []Surface `json:"surfaces"`
	Degraded bool      `json:"degraded"`
}

// SurfacePage pairs a discovered surface with its crawl output for
// aggregation.
type SurfacePage struct {
	Key  SurfaceKey `json:"key"`
	Page PageRecord `json:"page"`
}

// EntitySignals is the entity-level synthesis across all crawled surfaces.
type EntitySignals struct {
	SurfacesCounted      int      `json:"surfaces_counted"`
	TotalWordCount       int      `json:"total_word_count"`
	SchemaBlockCount     int      `json:"schema_block_count"`
	SchemaTypes          []string `json:"schema_types"`
	InternalLinks        int      `json:"internal_links"`
	ExternalLinks        int      `json:"external_links"`
	CanonicalConsistency bool     `json:"canonical_consistency"`
	InternalLinkStrength float64  `json:"internal_link_strength"`
	TitleConsistency     float64  `json:"title_consistency"`
	SocialHosts          []string `json:"social_hosts"`
}

// Dataset is a named vertical with its audit URL list.
type Dataset struct {
	Vertical    string   `json:"vertical"`
	Description string   `json:"description"`
	URLs        []string `json:"urls"`
}
