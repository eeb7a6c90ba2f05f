package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/jobstore"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	repo    jobstore.Repository
	started time.Time
	logger  *zap.Logger
}

// NewHealthHandler creates the handler. repo may be nil when the service
// runs cache-only; readiness then has no dependency to check.
func NewHealthHandler(repo jobstore.Repository, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		repo:    repo,
		started: time.Now(),
		logger:  logger,
	}
}

// HandleLiveness reports that the process is up.
//
// GET /healthz
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// HandleReadiness reports whether the durable store is reachable. A broken
// repository degrades the service rather than killing it, so readiness stays
// informative: the status body says "degraded" but the HTTP code is still
// 200 to keep traffic flowing to the cache-backed path.
//
// GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			h.logger.Warn("durable store unreachable", zap.Error(err))
			status = "degraded"
		}
	}
	WriteSuccess(w, r, map[string]any{"status": status})
}
