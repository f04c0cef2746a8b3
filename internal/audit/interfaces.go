package audit

import (
	"context"
	"net/http"
	"time"
)

// JobStore persists job records. Update performs an optimistic version check:
// the stored version must equal job.Version, and the persisted record gets
// job.Version+1. ErrVersionConflict signals a concurrent writer.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJob(ctx context.Context, job Job) (Job, error)
}

// DriftStore keeps append-only snapshot lists per vertical key, listed newest
// first.
type DriftStore interface {
	AppendSnapshot(ctx context.Context, key string, snap DriftSnapshot) error
	ListSnapshots(ctx context.Context, key string) ([]DriftSnapshot, error)
}

// FetchResult is the raw transport-level result of one fetch, before HTML
// extraction normalizes it into a PageRecord.
type FetchResult struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Fetcher performs a static HTTP fetch.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// Renderer executes the page in a headless browser and returns the rendered
// DOM. Implementations must release browser resources on every exit path.
type Renderer interface {
	Render(ctx context.Context, rawURL string, userAgent string) (FetchResult, error)
	Close(ctx context.Context) error
}

// BlobStore writes raw evidence artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes batch completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// DatasetLoader resolves a dataset key to its vertical and URL list.
type DatasetLoader interface {
	Load(key string) (Dataset, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
