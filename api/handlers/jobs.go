package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/hitl"
	"github.com/BaSui01/jobflow/internal/ctxkeys"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/manager"
)

// Launcher starts the workflow for a freshly created job. The HTTP layer
// does not know which phases a task maps to; the wiring layer supplies that.
type Launcher func(jobID string)

// JobHandler exposes the job lifecycle over HTTP.
type JobHandler struct {
	jobs   *manager.JobManager
	hitl   *hitl.Manager
	launch Launcher
	logger *zap.Logger
}

// NewJobHandler creates the handler. launch may be nil when no runner is
// wired (jobs are then created pending and driven externally).
func NewJobHandler(jobs *manager.JobManager, hm *hitl.Manager, launch Launcher, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{
		jobs:   jobs,
		hitl:   hm,
		launch: launch,
		logger: logger.With(zap.String("component", "job_handler")),
	}
}

// SubmitJobRequest is the POST /v1/jobs body.
type SubmitJobRequest struct {
	Task string `json:"task"`
}

// SubmitJobResponse is the created-job view.
type SubmitJobResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

// JobView is the client-facing projection of a job record.
type JobView struct {
	ID              string         `json:"id"`
	Task            string         `json:"task"`
	Status          job.Status     `json:"status"`
	CurrentPhase    string         `json:"current_phase,omitempty"`
	ProgressMessage string         `json:"progress_message,omitempty"`
	HITLType        string         `json:"hitl_type,omitempty"`
	HITLData        map[string]any `json:"hitl_data,omitempty"`
	Result          any            `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

func toJobView(rec *job.Record) JobView {
	return JobView{
		ID:              rec.ID,
		Task:            rec.Task,
		Status:          rec.Status,
		CurrentPhase:    rec.CurrentPhase,
		ProgressMessage: rec.ProgressMessage,
		HITLType:        rec.HITLType,
		HITLData:        rec.HITLData,
		Result:          rec.Result,
		Error:           rec.Error,
		CreatedAt:       rec.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:       rec.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// HandleSubmitJob accepts a new task and starts its workflow.
//
// POST /v1/jobs
func (h *JobHandler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		WriteError(w, r, CodeInvalidRequest, "task must not be empty", h.logger)
		return
	}

	rec := &job.Record{
		ID:    "job_" + uuid.NewString(),
		Owner: ctxkeys.Identity(r.Context()),
		Task:  req.Task,
	}
	if err := h.jobs.CreateJob(r.Context(), rec); err != nil {
		WriteError(w, r, CodeInvalidRequest, err.Error(), h.logger)
		return
	}
	if h.launch != nil {
		h.launch(rec.ID)
	}

	WriteSuccessStatus(w, r, http.StatusAccepted, SubmitJobResponse{
		JobID:  rec.ID,
		Status: rec.Status,
	})
}

// HandleGetJob returns the current view of a job.
//
// GET /v1/jobs/{id}
func (h *JobHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
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
	WriteSuccess(w, r, toJobView(rec))
}

// HandleGetPrompt returns the pending-input prompt for a job, repairing
// drifted status on the way out.
//
// GET /v1/jobs/{id}/prompt
func (h *JobHandler) HandleGetPrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	prompt, err := h.hitl.GetPrompt(r.Context(), id, ctxkeys.Identity(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, hitl.ErrNotFound):
			WriteError(w, r, CodeNotFound, "job not found", h.logger)
		case errors.Is(err, hitl.ErrForbidden):
			WriteError(w, r, CodeForbidden, "job belongs to another identity", h.logger)
		default:
			WriteError(w, r, CodeInternal, err.Error(), h.logger)
		}
		return
	}
	WriteSuccess(w, r, prompt)
}

// SubmitResponseRequest is the POST /v1/jobs/{id}/response body. The payload
// shape is owned by the prompt producer; it passes through opaquely.
type SubmitResponseRequest struct {
	Response map[string]any `json:"response"`
}

// SubmitResponseResult reports what happened to the submission.
type SubmitResponseResult struct {
	JobID   string       `json:"job_id"`
	Outcome hitl.Outcome `json:"outcome"`
}

// HandleSubmitResponse feeds a human answer into a paused job. An ignored
// response is a 200 with outcome "ignored", not an error.
//
// POST /v1/jobs/{id}/response
func (h *JobHandler) HandleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req SubmitResponseRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}

	outcome, err := h.hitl.SubmitResponse(r.Context(), id, req.Response, ctxkeys.Identity(r.Context()))
	if err != nil {
		WriteError(w, r, CodeInternal, err.Error(), h.logger)
		return
	}

	switch outcome {
	case hitl.OutcomeNotFound:
		WriteError(w, r, CodeNotFound, "job not found", h.logger)
	case hitl.OutcomeForbidden:
		WriteError(w, r, CodeForbidden, "job belongs to another identity", h.logger)
	default:
		WriteSuccess(w, r, SubmitResponseResult{JobID: id, Outcome: outcome})
	}
}
