// Package drift records batch-level score snapshots for trend observation.
package drift

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/metrics"
)

// Recorder appends snapshots best-effort. A failed write never fails or
// blocks the caller; it is logged and counted only.
type Recorder struct {
	store   audit.DriftStore
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewRecorder constructs a Recorder.
func NewRecorder(store audit.DriftStore, timeout time.Duration, logger *zap.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, timeout: timeout, logger: logger}
}

// Record appends the snapshot on a detached background task. The caller's
// context is deliberately not used: the batch result is already finalized and
// must not wait on, or be canceled with, this write.
func (r *Recorder) Record(verticalKey string, snap audit.DriftSnapshot) {
	if r == nil || r.store == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.AppendSnapshot(ctx, verticalKey, snap); err != nil {
			metrics.IncDriftRecord("error")
			r.logger.Warn("drift snapshot write failed",
				zap.String("vertical", verticalKey),
				zap.Error(err),
			)
			return
		}
		metrics.IncDriftRecord("ok")
	}()
}

// Wait blocks until all in-flight writes finish. Used on shutdown and in
// tests.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
