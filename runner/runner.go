package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/events"
	"github.com/BaSui01/jobflow/hitl"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/manager"
)

// PhaseFunc is the body of one workflow phase. It receives a RunContext to
// report progress, request human input, and set the job's final result.
type PhaseFunc func(ctx context.Context, rc *RunContext) error

// Phase pairs a name with its body. The name becomes the job's
// current_phase while the body runs.
type Phase struct {
	Name string
	Run  PhaseFunc
}

// Runner drives a fixed sequence of phases for each job. All job state goes
// through the JobManager; suspension goes through the hitl manager; progress
// goes to the job's event queue.
type Runner struct {
	jobs   *manager.JobManager
	hitl   *hitl.Manager
	events *events.Registry
	logger *zap.Logger
}

// New creates a runner bound to the job core.
func New(jobs *manager.JobManager, hm *hitl.Manager, reg *events.Registry, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		jobs:   jobs,
		hitl:   hm,
		events: reg,
		logger: logger.With(zap.String("component", "runner")),
	}
}

// RunContext is the per-job handle passed to phase bodies.
type RunContext struct {
	JobID string
	Task  string

	runner *Runner
	phase  string
	result any
}

// Progress updates the job's progress message within the current phase and
// streams it. The durable write is best-effort.
func (rc *RunContext) Progress(ctx context.Context, message string) error {
	_, err := rc.runner.jobs.UpdateJob(ctx, rc.JobID, job.ProgressPatch(rc.phase, message))
	rc.runner.events.Publish(events.ReasoningUpdate(rc.JobID, rc.phase, message))
	return err
}

// SetResult records the value the job completes with.
func (rc *RunContext) SetResult(result any) {
	rc.result = result
}

// RequestInput suspends the job for human input. It creates a checkpoint,
// durably flips the job to pending_user_input with the prompt payload,
// announces the pause on the event stream, then blocks until a response is
// submitted or ctx fires. The returned map is the submitted payload.
func (rc *RunContext) RequestInput(ctx context.Context, payload job.HITLPayload) (map[string]any, error) {
	r := rc.runner
	data := payload.DataMap()

	cp := r.hitl.CreateCheckpoint(rc.JobID, rc.phase, checkpointTypeFor(payload.Kind()), data)

	status := job.StatusPendingUserInput
	if _, err := r.jobs.UpdateJob(ctx, rc.JobID, job.Patch{
		Status:   &status,
		HITLType: job.StrPtr(string(payload.Kind())),
		HITLData: data,
	}); err != nil {
		return nil, fmt.Errorf("suspend for input: %w", err)
	}

	r.events.Publish(events.HITLRequired(rc.JobID, rc.phase, data))
	r.logger.Info("awaiting input",
		zap.String("job_id", rc.JobID),
		zap.String("phase", rc.phase),
		zap.String("checkpoint_id", cp.ID),
	)

	return r.hitl.Await(ctx, rc.JobID)
}

func checkpointTypeFor(kind job.HITLKind) hitl.CheckpointType {
	switch kind {
	case job.HITLKindClarify:
		return hitl.CheckpointTypeClarification
	case job.HITLKindConfirm:
		return hitl.CheckpointTypeConfirmation
	case job.HITLKindPreview:
		return hitl.CheckpointTypePreview
	default:
		return hitl.CheckpointType(kind)
	}
}

// Run executes the phases for an existing job until they all complete, one
// fails, or ctx fires. It registers the job's event queue, flips the job to
// running, and always closes the stream with the done sentinel. The
// terminal status (completed or failed) is flushed durably before the
// sentinel is pushed.
func (r *Runner) Run(ctx context.Context, jobID string, phases []Phase) error {
	rec, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	r.events.Register(jobID)
	defer r.events.Publish(events.Done(jobID))

	if err := r.transition(ctx, jobID, job.StatusRunning); err != nil {
		return err
	}

	rc := &RunContext{JobID: jobID, Task: rec.Task, runner: r}

	for _, phase := range phases {
		select {
		case <-ctx.Done():
			return r.fail(jobID, ctx.Err())
		default:
		}

		rc.phase = phase.Name
		r.events.Publish(events.PhaseStart(jobID, phase.Name))
		if _, err := r.jobs.UpdateJob(ctx, jobID, job.ProgressPatch(phase.Name, "")); err != nil {
			return r.fail(jobID, err)
		}

		if err := phase.Run(ctx, rc); err != nil {
			r.logger.Error("phase failed",
				zap.String("job_id", jobID),
				zap.String("phase", phase.Name),
				zap.Error(err),
			)
			return r.fail(jobID, err)
		}
	}

	status := job.StatusCompleted
	if _, err := r.jobs.UpdateJob(ctx, jobID, job.Patch{
		Status: &status,
		Result: rc.result,
	}); err != nil {
		return err
	}
	r.events.Publish(events.StatusChange(jobID, string(job.StatusCompleted)))
	r.logger.Info("job completed", zap.String("job_id", jobID))
	return nil
}

// Start launches Run on its own goroutine, returning immediately. Errors are
// already reflected in the job record and stream; they are logged here only.
func (r *Runner) Start(ctx context.Context, jobID string, phases []Phase) {
	go func() {
		if err := r.Run(ctx, jobID, phases); err != nil {
			r.logger.Warn("run ended with error",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
		}
	}()
}

func (r *Runner) transition(ctx context.Context, jobID string, to job.Status) error {
	if _, err := r.jobs.UpdateJob(ctx, jobID, job.StatusPatch(to)); err != nil {
		return err
	}
	r.events.Publish(events.StatusChange(jobID, string(to)))
	return nil
}

// fail marks the job failed with the error message. The original error is
// returned so callers see the cause, not the bookkeeping.
func (r *Runner) fail(jobID string, cause error) error {
	status := job.StatusFailed
	msg := cause.Error()
	// The job may be gone from both layers; nothing more to record then.
	if _, err := r.jobs.UpdateJob(context.Background(), jobID, job.Patch{
		Status: &status,
		Error:  &msg,
	}); err != nil {
		r.logger.Warn("recording failure state failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
	r.events.Publish(events.Errorf(jobID, msg))
	return cause
}
