package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/events"
	"github.com/BaSui01/jobflow/internal/ctxkeys"
	"github.com/BaSui01/jobflow/manager"
)

// StreamHandler serves a job's live event stream over a WebSocket. Events
// are forwarded in order until the done sentinel, then the socket closes
// normally.
type StreamHandler struct {
	jobs     *manager.JobManager
	registry *events.Registry
	logger   *zap.Logger
}

// NewStreamHandler creates the handler.
func NewStreamHandler(jobs *manager.JobManager, registry *events.Registry, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		jobs:     jobs,
		registry: registry,
		logger:   logger.With(zap.String("component", "stream_handler")),
	}
}

// HandleStream upgrades to a WebSocket and forwards the job's events.
//
// GET /v1/jobs/{id}/events
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Ownership is enforced before the upgrade so the client gets a proper
	// HTTP error instead of an opaque close frame.
	rec, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			WriteError(w, r, CodeNotFound, "job not found", h.logger)
			return
		}
		WriteError(w, r, CodeInternal, err.Error(), h.logger)
		return
	}
	if !rec.OwnedBy(ctxkeys.Identity(r.Context())) {
		WriteError(w, r, CodeForbidden, "job belongs to another identity", h.logger)
		return
	}

	queue, ok := h.registry.Get(id)
	if !ok {
		WriteError(w, r, CodeNotFound, "no event stream for this job", h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		ev, ok := queue.Next(ctx.Done())
		if !ok {
			// Client went away; events stay queued for the next consumer.
			return
		}
		if err := h.writeEvent(ctx, conn, ev); err != nil {
			h.logger.Debug("stream write failed", zap.String("job_id", id), zap.Error(err))
			return
		}
		if ev.Terminal() {
			_ = conn.Close(websocket.StatusNormalClosure, "done")
			return
		}
	}
}

func (h *StreamHandler) writeEvent(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
