// Package worker runs ad-hoc multi-URL audits through a bounded pool.
package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/metrics"
)

// AuditFunc is the single-URL pipeline the pool fans out over.
type AuditFunc func(ctx context.Context, rawURL string) (audit.Outcome, error)

// Result pairs one input URL with its outcome or failure. Err is nil on
// success.
type Result struct {
	URL     string
	Outcome audit.Outcome
	Err     error
}

// Pool is a fixed-size concurrent executor. Unlike the batch orchestrator it
// keeps nothing durable: results live only in the returned slice.
type Pool struct {
	size    int
	auditFn AuditFunc
	logger  *zap.Logger
}

// NewPool constructs a Pool. Size below 1 falls back to 4 workers.
func NewPool(size int, auditFn AuditFunc, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{size: size, auditFn: auditFn, logger: logger}
}

// Run audits every URL with at most the configured number of workers in
// flight. Each task's failure is isolated: it fills its own Result and never
// cancels siblings. Results come back in input order.
func (p *Pool) Run(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i, rawURL := range urls {
		g.Go(func() error {
			metrics.AddPoolWorkers(1)
			defer metrics.AddPoolWorkers(-1)

			outcome, err := p.auditFn(ctx, rawURL)
			results[i] = Result{URL: rawURL, Outcome: outcome, Err: err}
			if err != nil {
				p.logger.Warn("pool audit failed",
					zap.String("url", rawURL),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	// Tasks always return nil; Wait only drains the group.
	_ = g.Wait()
	return results
}
