package hitl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/internal/metrics"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/manager"
)

// ErrForbidden is returned when the caller's identity does not match the
// owner of a non-anonymous job.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound aliases the manager sentinel for unknown jobs.
var ErrNotFound = manager.ErrNotFound

// Outcome is the result of a response submission. Ignored is a benign,
// expected outcome (not an error) returned when the job was not waiting
// for input.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeForbidden Outcome = "forbidden"
)

// Prompt is the self-healed view returned to a client polling for pending
// input: the corrected status plus the opaque hitl payload.
type Prompt struct {
	JobID    string         `json:"job_id"`
	Status   job.Status     `json:"status"`
	HITLType string         `json:"hitl_type,omitempty"`
	HITLData map[string]any `json:"hitl_data,omitempty"`
}

// Manager tracks checkpoints and the suspend/resume signal per job. Job
// state is never touched directly: every status or hitl mutation goes
// through the JobManager so the flush rules hold.
type Manager struct {
	jobs   *manager.JobManager
	logger *zap.Logger
	stats  *metrics.Collector

	mu          sync.Mutex
	checkpoints map[string]*Checkpoint
	// waiters holds the per-job single-slot resume signal. The workflow
	// runner blocks on it in Await; SubmitResponse resolves it exactly once.
	waiters map[string]chan map[string]any
}

// NewManager creates a checkpoint manager bound to a job manager.
func NewManager(jobs *manager.JobManager, logger *zap.Logger, stats *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		jobs:        jobs,
		logger:      logger.With(zap.String("component", "hitl_manager")),
		stats:       stats,
		checkpoints: make(map[string]*Checkpoint),
		waiters:     make(map[string]chan map[string]any),
	}
}

// CreateCheckpoint allocates a pending checkpoint and returns it. The caller
// (the workflow runner) is responsible for setting the job's hitl fields and
// status via the JobManager afterwards.
func (m *Manager) CreateCheckpoint(jobID, phase string, cpType CheckpointType, data map[string]any) *Checkpoint {
	cp := &Checkpoint{
		ID:        "cp_" + uuid.NewString(),
		JobID:     jobID,
		Phase:     phase,
		Type:      cpType,
		Status:    CheckpointStatusPending,
		Data:      data,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.checkpoints[cp.ID] = cp
	m.mu.Unlock()

	m.stats.RecordCheckpointCreated()
	m.logger.Info("checkpoint created",
		zap.String("checkpoint_id", cp.ID),
		zap.String("job_id", jobID),
		zap.String("phase", phase),
		zap.String("type", string(cpType)),
	)
	return cp.clone()
}

// GetCheckpoint returns a checkpoint by id.
func (m *Manager) GetCheckpoint(id string) (*Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, false
	}
	return cp.clone(), true
}

// UpdateCheckpointStatus is the only way a checkpoint leaves the pending
// state. The transition is one-shot: calls on an already-resolved checkpoint
// are logged no-ops, not errors.
func (m *Manager) UpdateCheckpointStatus(id string, status CheckpointStatus, userResponse map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		m.logger.Warn("update for unknown checkpoint", zap.String("checkpoint_id", id))
		return
	}
	if cp.Resolved() {
		m.logger.Info("checkpoint already resolved, ignoring update",
			zap.String("checkpoint_id", id),
			zap.String("status", string(cp.Status)),
		)
		return
	}

	cp.Status = status
	cp.UserResponse = userResponse
	now := time.Now()
	cp.ResolvedAt = &now
	m.stats.RecordCheckpointResolved(string(status))
}

// Await blocks until the job's pending interaction is resolved and returns
// the submitted payload. Timeout enforcement belongs to the caller's ctx;
// this primitive never times out on its own.
func (m *Manager) Await(ctx context.Context, jobID string) (map[string]any, error) {
	ch := m.waiter(jobID)
	select {
	case payload := <-ch:
		m.dropWaiter(jobID)
		return payload, nil
	case <-ctx.Done():
		m.dropWaiter(jobID)
		return nil, ctx.Err()
	}
}

// GetPrompt returns the job's pending-input view for the given caller.
//
// Self-healing rule: a job persisted as running while carrying unresolved
// hitl data had its payload written before the status flip was flushed; the
// read path repairs the status to pending_user_input before returning. A
// payload already marked resolved is never revived; the stored status
// stands.
func (m *Manager) GetPrompt(ctx context.Context, jobID, identity string) (*Prompt, error) {
	rec, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !rec.OwnedBy(identity) {
		return nil, ErrForbidden
	}

	status := rec.Status
	if status == job.StatusRunning && rec.HITLPendingUnresolved() {
		m.logger.Info("healing drifted status on prompt read",
			zap.String("job_id", jobID),
			zap.String("from", string(status)),
		)
		healed, err := m.jobs.UpdateJob(ctx, jobID, job.StatusPatch(job.StatusPendingUserInput))
		if err == nil {
			status = healed.Status
		}
	}

	return &Prompt{
		JobID:    rec.ID,
		Status:   status,
		HITLType: rec.HITLType,
		HITLData: rec.HITLData,
	}, nil
}

// SubmitResponse handles a human answer for a paused job.
//
// If the job is not in a pending-input state the response is Ignored and
// nothing changes. Otherwise the hitl payload is marked resolved and the
// status flipped back to running in one critical patch (durably flushed
// before return), the job's pending checkpoint is resolved, and exactly one
// blocked waiter is woken strictly after the flush, so a crash between
// flush and wake loses at most the wakeup, never the resolution.
func (m *Manager) SubmitResponse(ctx context.Context, jobID string, payload map[string]any, identity string) (Outcome, error) {
	rec, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.stats.RecordResponse(string(OutcomeNotFound))
			return OutcomeNotFound, nil
		}
		return "", err
	}
	if !rec.OwnedBy(identity) {
		m.stats.RecordResponse(string(OutcomeForbidden))
		return OutcomeForbidden, nil
	}

	if !rec.Status.IsPendingInput() {
		m.logger.Info("response ignored, job not awaiting input",
			zap.String("job_id", jobID),
			zap.String("status", string(rec.Status)),
		)
		m.stats.RecordResponse(string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	resolved := make(map[string]any, len(rec.HITLData)+2)
	for k, v := range rec.HITLData {
		resolved[k] = v
	}
	resolved[job.ResolvedKey] = true
	if payload != nil {
		resolved["response"] = payload
	}

	running := job.StatusRunning
	if _, err := m.jobs.UpdateJob(ctx, jobID, job.Patch{
		Status:   &running,
		HITLData: resolved,
	}); err != nil {
		return "", err
	}

	m.resolvePendingCheckpoint(jobID, payload)

	// Wake after the durable flush above.
	m.wake(jobID, payload)

	m.stats.RecordResponse(string(OutcomeAccepted))
	m.logger.Info("response accepted", zap.String("job_id", jobID))
	return OutcomeAccepted, nil
}

// resolvePendingCheckpoint approves the job's most recent pending checkpoint.
func (m *Manager) resolvePendingCheckpoint(jobID string, payload map[string]any) {
	m.mu.Lock()
	var latest *Checkpoint
	for _, cp := range m.checkpoints {
		if cp.JobID != jobID || cp.Resolved() {
			continue
		}
		if latest == nil || cp.CreatedAt.After(latest.CreatedAt) {
			latest = cp
		}
	}
	var id string
	if latest != nil {
		id = latest.ID
	}
	m.mu.Unlock()

	if id != "" {
		m.UpdateCheckpointStatus(id, CheckpointStatusApproved, payload)
	}
}

// waiter returns the job's resume channel, creating it lazily. Buffered one
// deep so a response arriving before the runner blocks is not lost.
func (m *Manager) waiter(jobID string) chan map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.waiters[jobID]
	if !ok {
		ch = make(chan map[string]any, 1)
		m.waiters[jobID] = ch
	}
	return ch
}

func (m *Manager) dropWaiter(jobID string) {
	m.mu.Lock()
	delete(m.waiters, jobID)
	m.mu.Unlock()
}

// wake delivers the payload to at most one waiter without blocking.
func (m *Manager) wake(jobID string, payload map[string]any) {
	ch := m.waiter(jobID)
	select {
	case ch <- payload:
	default:
		m.logger.Warn("resume signal already delivered", zap.String("job_id", jobID))
	}
}
