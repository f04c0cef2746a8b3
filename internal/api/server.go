// Package api exposes the HTTP interface for the audit service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/metrics"
	"github.com/entityscope/entityscope/internal/worker"
)

// Orchestrator is the batch/audit core the handlers delegate to.
type Orchestrator interface {
	StartBatch(ctx context.Context, datasetKey string) (string, error)
	Advance(ctx context.Context, jobID string, budget time.Duration) (audit.Job, error)
	AuditURL(ctx context.Context, rawURL string) (audit.Outcome, error)
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router chi.Router
	orch   Orchestrator
	pool   *worker.Pool
	jobs   audit.JobStore
	drift  audit.DriftStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch Orchestrator,
	pool *worker.Pool,
	jobs audit.JobStore,
	drift audit.DriftStore,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:   orch,
		pool:   pool,
		jobs:   jobs,
		drift:  drift,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(120 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.createBatch)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getBatch)
				r.Post("/advance", s.advanceBatch)
			})
		})
		r.Route("/audits", func(r chi.Router) {
			r.Post("/", s.auditSingle)
			r.Post("/bulk", s.auditBulk)
		})
		r.Get("/drift/{vertical}", s.listDrift)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createBatchRequest struct {
	Dataset string `json:"dataset"`
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobID, err := s.orch.StartBatch(r.Context(), strings.TrimSpace(req.Dataset))
	if err != nil {
		if errors.Is(err, audit.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("start batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create batch")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// advanceBatch runs one time-fenced chunk. Per-URL failures are inside the
// 200 payload; only transport-level faults surface as HTTP errors.
func (s *Server) advanceBatch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.orch.Advance(r.Context(), jobID, 0)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, audit.ErrVersionConflict):
			writeError(w, http.StatusConflict, "job advanced concurrently")
		default:
			s.logger.Error("advance batch failed", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to advance batch")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     job.Status,
		"processed":  job.Cursor,
		"total":      len(job.URLs),
		"incomplete": !job.Completed(),
	})
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get batch failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     job.ID,
		"dataset":    job.DatasetRef,
		"status":     job.Status,
		"results":    job.Results,
		"errors":     job.Errors,
		"aggregates": batchAggregates(job),
	})
}

type auditRequest struct {
	URL string `json:"url"`
}

func (s *Server) auditSingle(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	outcome, err := s.orch.AuditURL(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		if errors.Is(err, audit.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Crawl-level failures are part of the audit result, not a
		// transport fault.
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"url":     req.URL,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type bulkAuditRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) auditBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	results := s.pool.Run(r.Context(), req.URLs)

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			out = append(out, map[string]any{
				"success": false,
				"url":     res.URL,
				"error":   res.Err.Error(),
			})
			continue
		}
		out = append(out, map[string]any{
			"success": true,
			"url":     res.URL,
			"outcome": res.Outcome,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) listDrift(w http.ResponseWriter, r *http.Request) {
	vertical := chi.URLParam(r, "vertical")
	snaps, err := s.drift.ListSnapshots(r.Context(), vertical)
	if err != nil {
		s.logger.Error("list drift failed", zap.String("vertical", vertical), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list drift history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vertical": vertical, "snapshots": snaps})
}

func batchAggregates(job audit.Job) map[string]any {
	var sum float64
	scored := 0
	for _, res := range job.Results {
		if res.EntityScore != nil {
			sum += float64(*res.EntityScore)
			scored++
		}
	}
	avg := 0.0
	if scored > 0 {
		avg = sum / float64(scored)
	}
	return map[string]any{
		"processed":     job.Cursor,
		"total":         len(job.URLs),
		"scored":        scored,
		"failed":        len(job.Errors),
		"average_score": avg,
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
